package command

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

const finalizeAPIPrefix = "/api/v1/finalize"

// Registry returns all CLI commands keyed by "service action".
func Registry() map[string]Command {
	commands := []Command{
		{
			Service:      "final",
			Action:       "recompute",
			Method:       http.MethodPost,
			PathTemplate: finalizeAPIPrefix + "/recompute",
			Summary:      "recompute the finals touched by one submission change",
			Fields: []Field{
				{Name: "problem_id", Aliases: []string{"problem", "pid"}, Prompt: "problem_id", Type: FieldInt64, Required: true},
				{Name: "owner_id", Aliases: []string{"owner", "uid"}, Prompt: "owner_id", Type: FieldInt64},
				{Name: "contest_problem_id", Aliases: []string{"cp"}, Prompt: "contest_problem_id", Type: FieldInt64},
				{Name: "previous_contest_problem_id", Aliases: []string{"prev_cp"}, Prompt: "previous_contest_problem_id", Type: FieldInt64},
			},
		},
		{
			Service:      "final",
			Action:       "reselect",
			Method:       http.MethodPost,
			PathTemplate: finalizeAPIPrefix + "/contest-problems/:id/reselect",
			Summary:      "recompute contest finals of every owner of a contest problem",
			Fields: []Field{
				{Name: "id", Aliases: []string{"cp", "contest_problem_id"}, Prompt: "contest_problem_id", Type: FieldInt64, Required: true, InPath: true},
			},
		},
		{
			Service:      "final",
			Action:       "delete",
			Method:       http.MethodDelete,
			PathTemplate: finalizeAPIPrefix + "/submissions/:id",
			Summary:      "delete a submission and recompute its finals",
			Fields: []Field{
				{Name: "id", Aliases: []string{"submission_id", "sid"}, Prompt: "submission_id", Type: FieldInt64, Required: true, InPath: true},
			},
		},
		{
			Service:      "final",
			Action:       "candidate",
			Method:       http.MethodPut,
			PathTemplate: finalizeAPIPrefix + "/submissions/:id/candidate",
			Summary:      "toggle whether a submission may be chosen as final",
			Fields: []Field{
				{Name: "id", Aliases: []string{"submission_id", "sid"}, Prompt: "submission_id", Type: FieldInt64, Required: true, InPath: true},
				{Name: "candidate", Prompt: "candidate (true/false)", Type: FieldBool, Required: true},
			},
		},
		{
			Service:      "final",
			Action:       "get",
			Method:       http.MethodGet,
			PathTemplate: finalizeAPIPrefix + "/problems/:problem_id/owners/:owner_id/final",
			Summary:      "show the problem final of an owner",
			Fields: []Field{
				{Name: "problem_id", Aliases: []string{"problem", "pid"}, Prompt: "problem_id", Type: FieldInt64, Required: true, InPath: true},
				{Name: "owner_id", Aliases: []string{"owner", "uid"}, Prompt: "owner_id", Type: FieldInt64, Required: true, InPath: true},
			},
		},
		{
			Service:      "final",
			Action:       "contest",
			Method:       http.MethodGet,
			PathTemplate: finalizeAPIPrefix + "/contest-problems/:id/owners/:owner_id/finals",
			Summary:      "show the contest finals of an owner",
			Fields: []Field{
				{Name: "id", Aliases: []string{"cp", "contest_problem_id"}, Prompt: "contest_problem_id", Type: FieldInt64, Required: true, InPath: true},
				{Name: "owner_id", Aliases: []string{"owner", "uid"}, Prompt: "owner_id", Type: FieldInt64, Required: true, InPath: true},
			},
		},
	}

	result := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		result[cmd.Key()] = cmd
	}
	return result
}

// SortedKeys lists registry keys in a stable order.
func SortedKeys(commands map[string]Command) []string {
	keys := make([]string, 0, len(commands))
	for key := range commands {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// BuildRequest validates params against cmd and renders the HTTP request.
func BuildRequest(cmd Command, params Params) (RequestSpec, error) {
	params.Canonicalize(cmd.Fields)
	for _, field := range cmd.Fields {
		value := params.Get(field.Name)
		if value == "" {
			if field.Required {
				return RequestSpec{}, fmt.Errorf("missing required param: %s", field.Name)
			}
			continue
		}
		if err := checkType(field, value); err != nil {
			return RequestSpec{}, err
		}
	}

	path, err := buildPath(cmd, params)
	if err != nil {
		return RequestSpec{}, err
	}

	var body []byte
	if cmd.Method != http.MethodGet && cmd.Method != http.MethodDelete {
		payload, err := buildPayload(cmd, params)
		if err != nil {
			return RequestSpec{}, err
		}
		if len(payload) > 0 {
			body, err = json.Marshal(payload)
			if err != nil {
				return RequestSpec{}, fmt.Errorf("marshal request body failed: %w", err)
			}
		}
	}

	return RequestSpec{
		Method:  cmd.Method,
		Path:    path,
		Headers: map[string]string{},
		Body:    body,
	}, nil
}

func checkType(field Field, value string) error {
	switch field.Type {
	case FieldInt64:
		n, err := ParseInt64(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", field.Name, err)
		}
		if n <= 0 {
			return fmt.Errorf("invalid %s: must be positive", field.Name)
		}
	case FieldBool:
		if _, err := ParseBool(value); err != nil {
			return fmt.Errorf("invalid %s: %w", field.Name, err)
		}
	}
	return nil
}

func buildPath(cmd Command, params Params) (string, error) {
	path := cmd.PathTemplate
	for _, field := range cmd.Fields {
		if !field.InPath {
			continue
		}
		value := strings.TrimSpace(params.Get(field.Name))
		if value == "" {
			return "", fmt.Errorf("missing path parameter: %s", field.Name)
		}
		path = strings.ReplaceAll(path, ":"+field.Name, value)
	}
	return path, nil
}

// buildPayload renders non-path fields as JSON values of their type.
func buildPayload(cmd Command, params Params) (map[string]interface{}, error) {
	payload := map[string]interface{}{}
	for _, field := range cmd.Fields {
		if field.InPath {
			continue
		}
		value := params.Get(field.Name)
		if value == "" {
			continue
		}
		switch field.Type {
		case FieldInt64:
			n, err := ParseInt64(value)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", field.Name, err)
			}
			payload[field.Name] = n
		case FieldBool:
			b, err := ParseBool(value)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", field.Name, err)
			}
			payload[field.Name] = b
		default:
			payload[field.Name] = value
		}
	}
	return payload, nil
}

package controller

import (
	"strconv"

	"simoj/internal/finalize/service"
	appErr "simoj/pkg/errors"
	"simoj/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// FinalizeController exposes the finalizer to operators.
type FinalizeController struct {
	finalizer *service.FinalizerService
	reselect  *service.ReselectJob
}

// NewFinalizeController creates a new FinalizeController.
func NewFinalizeController(finalizer *service.FinalizerService, reselect *service.ReselectJob) *FinalizeController {
	return &FinalizeController{finalizer: finalizer, reselect: reselect}
}

// RegisterRoutes mounts the admin endpoints on group.
func (h *FinalizeController) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/recompute", h.Recompute)
	group.POST("/contest-problems/:id/reselect", h.Reselect)
	group.DELETE("/submissions/:id", h.DeleteSubmission)
	group.PUT("/submissions/:id/candidate", h.SetCandidate)
	group.GET("/problems/:problem_id/owners/:owner_id/final", h.GetProblemFinal)
	group.GET("/contest-problems/:id/owners/:owner_id/finals", h.GetContestFinals)
}

// Recompute recomputes the keys of one submission change in a new transaction.
func (h *FinalizeController) Recompute(c *gin.Context) {
	var req RecomputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	res, err := h.finalizer.RecomputeAll(c.Request.Context(), service.RecomputeRequest{
		SubmissionID:             req.SubmissionID,
		Owner:                    req.OwnerID,
		ProblemID:                req.ProblemID,
		ContestProblemID:         req.ContestProblemID,
		PreviousContestProblemID: req.PreviousContestProblemID,
		InOwnTransaction:         true,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// Reselect recomputes the contest finals of every owner of a contest problem.
func (h *FinalizeController) Reselect(c *gin.Context) {
	contestProblemID, ok := pathID(c, "id")
	if !ok {
		response.BadRequest(c, "Invalid contest problem id")
		return
	}
	if h.reselect == nil {
		response.ErrorWithCode(c, appErr.ServiceUnavailable, "Reselection is not configured")
		return
	}

	summary, err := h.reselect.Run(c.Request.Context(), contestProblemID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, summary)
}

// DeleteSubmission deletes a submission and recomputes its keys.
func (h *FinalizeController) DeleteSubmission(c *gin.Context) {
	submissionID, ok := pathID(c, "id")
	if !ok {
		response.BadRequest(c, "Invalid submission id")
		return
	}

	res, err := h.finalizer.DeleteSubmission(c.Request.Context(), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// SetCandidate changes a submission's eligibility.
func (h *FinalizeController) SetCandidate(c *gin.Context) {
	submissionID, ok := pathID(c, "id")
	if !ok {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	var req CandidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	res, err := h.finalizer.SetFinalCandidate(c.Request.Context(), submissionID, *req.Candidate)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// GetProblemFinal returns the problem final of one owner.
func (h *FinalizeController) GetProblemFinal(c *gin.Context) {
	problemID, ok := pathID(c, "problem_id")
	if !ok {
		response.BadRequest(c, "Invalid problem id")
		return
	}
	ownerID, ok := pathID(c, "owner_id")
	if !ok {
		response.BadRequest(c, "Invalid owner id")
		return
	}

	id, err := h.finalizer.GetProblemFinal(c.Request.Context(), ownerID, problemID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, ProblemFinalResponse{OwnerID: ownerID, ProblemID: problemID, SubmissionID: id})
}

// GetContestFinals returns both contest finals of one owner.
func (h *FinalizeController) GetContestFinals(c *gin.Context) {
	contestProblemID, ok := pathID(c, "id")
	if !ok {
		response.BadRequest(c, "Invalid contest problem id")
		return
	}
	ownerID, ok := pathID(c, "owner_id")
	if !ok {
		response.BadRequest(c, "Invalid owner id")
		return
	}

	finals, err := h.finalizer.GetContestFinals(c.Request.Context(), ownerID, contestProblemID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, ContestFinalsResponse{
		OwnerID:          ownerID,
		ContestProblemID: contestProblemID,
		FullID:           finals.FullID,
		InitialID:        finals.InitialID,
	})
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// RecomputeRequest defines the recompute payload. A missing owner_id marks a
// system submission and recomputes nothing.
type RecomputeRequest struct {
	SubmissionID             int64  `json:"submission_id" binding:"omitempty,gt=0"`
	OwnerID                  *int64 `json:"owner_id"`
	ProblemID                int64  `json:"problem_id" binding:"required,gt=0"`
	ContestProblemID         *int64 `json:"contest_problem_id" binding:"omitempty,gt=0"`
	PreviousContestProblemID *int64 `json:"previous_contest_problem_id" binding:"omitempty,gt=0"`
}

// CandidateRequest defines the candidacy payload.
type CandidateRequest struct {
	Candidate *bool `json:"candidate" binding:"required"`
}

// ProblemFinalResponse defines the problem final payload; submission_id is
// null when the owner has no candidate.
type ProblemFinalResponse struct {
	OwnerID      int64  `json:"owner_id"`
	ProblemID    int64  `json:"problem_id"`
	SubmissionID *int64 `json:"submission_id"`
}

// ContestFinalsResponse defines the contest finals payload.
type ContestFinalsResponse struct {
	OwnerID          int64  `json:"owner_id"`
	ContestProblemID int64  `json:"contest_problem_id"`
	FullID           *int64 `json:"full_id"`
	InitialID        *int64 `json:"initial_id"`
}

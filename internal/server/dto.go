package server

import (
	"encoding/json"

	"datarequest/internal/domain"
	"datarequest/internal/repo"
)

type SubmitRequest struct {
	Data              json.RawMessage `json:"data" doc:"The data request proposal document"`
	PreviousRequestID string          `json:"previous_request_id,omitempty" doc:"Id of the rejected request this resubmission replaces"`
}

type RequestResponse struct {
	ID                string          `json:"id"`
	Owner             string          `json:"owner"`
	Status            string          `json:"status"`
	PreviousRequestID string          `json:"previous_request_id,omitempty"`
	Document          json.RawMessage `json:"document"`
	CreatedAt         string          `json:"created_at" format:"date-time"`
}

func requestResponse(r domain.Request) RequestResponse {
	return RequestResponse{
		ID:                r.ID,
		Owner:             r.Owner,
		Status:            r.Status.String(),
		PreviousRequestID: r.PreviousRequestID,
		Document:          r.Document,
		CreatedAt:         r.CreatedAt,
	}
}

type BrowseResponse struct {
	Total int                     `json:"total"`
	Items []domain.RequestSummary `json:"items"`
}

func browseResponse(r repo.BrowseResult) BrowseResponse {
	return BrowseResponse{Total: r.Total, Items: r.Items}
}

type BoolResponse struct {
	Result bool `json:"result"`
}

type ArtifactResponse struct {
	Data json.RawMessage `json:"data"`
}

type ReviewsResponse struct {
	Reviews []json.RawMessage `json:"reviews"`
}

type StatusResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type DevLoginRequest struct {
	Username string `json:"username"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"

	"datarequest/internal/domain"
	"datarequest/internal/repo"
	"datarequest/internal/workflow"
)

type requestPath struct {
	RequestID string `path:"request_id"`
}

func registerRequests(api huma.API, e workflow.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "browse-datarequests",
		Method:      http.MethodGet,
		Path:        "/datarequests",
		Summary:     "Browse data requests",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SortOn    string `query:"sort_on" enum:"name,create_time" default:"name"`
		SortOrder string `query:"sort_order" enum:"asc,desc" default:"asc"`
		Offset    int    `query:"offset" minimum:"0" default:"0"`
		Limit     int    `query:"limit" minimum:"1" maximum:"100" default:"10"`
	}) (*struct {
		Body BrowseResponse `json:"body"`
	}, error) {
		if _, authErr := usernameFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		result, err := e.Browse(ctx, repo.BrowseOptions{
			SortBy:     input.SortOn,
			Descending: input.SortOrder == "desc",
			Offset:     input.Offset,
			Limit:      input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BrowseResponse `json:"body"`
		}{Body: browseResponse(result)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "submit-datarequest",
		Method:        http.MethodPost,
		Path:          "/datarequests",
		Summary:       "Submit a data request",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body SubmitRequest `json:"body"`
	}) (*struct {
		Body RequestResponse `json:"body"`
	}, error) {
		username, authErr := usernameFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if len(input.Body.Data) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "invalid_data", "data is required", nil)
		}
		req, err := e.Submit(ctx, username, input.Body.Data, strings.TrimSpace(input.Body.PreviousRequestID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RequestResponse `json:"body"`
		}{Body: requestResponse(req)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-datarequest",
		Method:      http.MethodGet,
		Path:        "/datarequests/{request_id}",
		Summary:     "Get a data request",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *requestPath) (*struct {
		Body RequestResponse `json:"body"`
	}, error) {
		username, authErr := usernameFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		req, err := e.Get(ctx, input.RequestID, username)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RequestResponse `json:"body"`
		}{Body: requestResponse(req)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "datarequest-is-owner",
		Method:      http.MethodGet,
		Path:        "/datarequests/{request_id}/is-owner",
		Summary:     "Whether the caller owns the request",
		Errors:      []int{http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *requestPath) (*struct {
		Body BoolResponse `json:"body"`
	}, error) {
		username, authErr := usernameFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ok, err := e.IsOwner(ctx, input.RequestID, username)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BoolResponse `json:"body"`
		}{Body: BoolResponse{Result: ok}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "datarequest-is-reviewer",
		Method:      http.MethodGet,
		Path:        "/datarequests/{request_id}/is-reviewer",
		Summary:     "Whether the caller is an assigned reviewer",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *requestPath) (*struct {
		Body BoolResponse `json:"body"`
	}, error) {
		username, authErr := usernameFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ok, err := e.IsReviewer(ctx, input.RequestID, username)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BoolResponse `json:"body"`
		}{Body: BoolResponse{Result: ok}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-datarequest-reviews",
		Method:      http.MethodGet,
		Path:        "/datarequests/{request_id}/reviews",
		Summary:     "List the per-reviewer reviews",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *requestPath) (*struct {
		Body ReviewsResponse `json:"body"`
	}, error) {
		username, authErr := usernameFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		reviews, err := e.Reviews(ctx, input.RequestID, username)
		if err != nil {
			return nil, handleError(err)
		}
		if reviews == nil {
			reviews = []json.RawMessage{}
		}
		return &struct {
			Body ReviewsResponse `json:"body"`
		}{Body: ReviewsResponse{Reviews: reviews}}, nil
	})
}

// registerStageOps wires one POST per stage transition plus the GETs for the
// stage artifacts.
func registerStageOps(api huma.API, e workflow.Engine) {
	type stageSubmit func(ctx context.Context, requestID, actor string, doc json.RawMessage) error

	registerArtifactStage := func(opID, urlPath, summary string, kind domain.ArtifactKind, submit stageSubmit) {
		huma.Register(api, huma.Operation{
			OperationID:   opID + "-submit",
			Method:        http.MethodPost,
			Path:          "/datarequests/{request_id}/" + urlPath,
			Summary:       "Submit " + summary,
			DefaultStatus: http.StatusOK,
			Errors: []int{
				http.StatusBadRequest,
				http.StatusForbidden,
				http.StatusNotFound,
				http.StatusConflict,
			},
		}, func(ctx context.Context, input *struct {
			RequestID string          `path:"request_id"`
			Body      json.RawMessage `json:"body" doc:"Stage form"`
		}) (*struct {
			Body StatusResponse `json:"body"`
		}, error) {
			username, authErr := usernameFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			if err := submit(ctx, input.RequestID, username, input.Body); err != nil {
				return nil, handleError(err)
			}
			status, err := e.Repo.GetStatus(ctx, e.DB, input.RequestID)
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body StatusResponse `json:"body"`
			}{Body: StatusResponse{ID: input.RequestID, Status: status.String()}}, nil
		})

		huma.Register(api, huma.Operation{
			OperationID: opID + "-get",
			Method:      http.MethodGet,
			Path:        "/datarequests/{request_id}/" + urlPath,
			Summary:     "Get " + summary,
			Errors:      []int{http.StatusForbidden, http.StatusNotFound},
		}, func(ctx context.Context, input *requestPath) (*struct {
			Body ArtifactResponse `json:"body"`
		}, error) {
			username, authErr := usernameFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			doc, err := e.GetArtifact(ctx, input.RequestID, username, kind)
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body ArtifactResponse `json:"body"`
			}{Body: ArtifactResponse{Data: doc}}, nil
		})
	}

	registerArtifactStage("preliminary-review", "preliminary-review", "the preliminary review",
		domain.ArtifactPreliminaryReview, e.PreliminaryReview)
	registerArtifactStage("datamanager-review", "datamanager-review", "the data manager review",
		domain.ArtifactDatamanagerReview, e.DataManagerReview)
	registerArtifactStage("assignment", "assignment", "the reviewer assignment",
		domain.ArtifactAssignment, e.Assignment)

	huma.Register(api, huma.Operation{
		OperationID:   "review-submit",
		Method:        http.MethodPost,
		Path:          "/datarequests/{request_id}/review",
		Summary:       "Submit a committee member's review",
		DefaultStatus: http.StatusOK,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		RequestID string          `path:"request_id"`
		Body      json.RawMessage `json:"body" doc:"Review form"`
	}) (*struct {
		Body StatusResponse `json:"body"`
	}, error) {
		username, authErr := usernameFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.Review(ctx, input.RequestID, username, input.Body); err != nil {
			return nil, handleError(err)
		}
		status, err := e.Repo.GetStatus(ctx, e.DB, input.RequestID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StatusResponse `json:"body"`
		}{Body: StatusResponse{ID: input.RequestID, Status: status.String()}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "evaluation-submit",
		Method:        http.MethodPost,
		Path:          "/datarequests/{request_id}/evaluation",
		Summary:       "Submit the board's final evaluation",
		DefaultStatus: http.StatusOK,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		RequestID string          `path:"request_id"`
		Body      json.RawMessage `json:"body" doc:"Evaluation form"`
	}) (*struct {
		Body StatusResponse `json:"body"`
	}, error) {
		username, authErr := usernameFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.Evaluation(ctx, input.RequestID, username, input.Body); err != nil {
			return nil, handleError(err)
		}
		status, err := e.Repo.GetStatus(ctx, e.DB, input.RequestID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StatusResponse `json:"body"`
		}{Body: StatusResponse{ID: input.RequestID, Status: status.String()}}, nil
	})

	type hookOp func(ctx context.Context, requestID, actor string) error
	registerHook := func(opID, urlPath, summary string, hook hookOp) {
		huma.Register(api, huma.Operation{
			OperationID:   opID,
			Method:        http.MethodPost,
			Path:          "/datarequests/{request_id}/" + urlPath,
			Summary:       summary,
			DefaultStatus: http.StatusOK,
			Errors: []int{
				http.StatusForbidden,
				http.StatusNotFound,
				http.StatusConflict,
			},
		}, func(ctx context.Context, input *requestPath) (*struct {
			Body StatusResponse `json:"body"`
		}, error) {
			username, authErr := usernameFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			if err := hook(ctx, input.RequestID, username); err != nil {
				return nil, handleError(err)
			}
			status, err := e.Repo.GetStatus(ctx, e.DB, input.RequestID)
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body StatusResponse `json:"body"`
			}{Body: StatusResponse{ID: input.RequestID, Status: status.String()}}, nil
		})
	}

	registerHook("dta-uploaded", "dta-uploaded", "DTA post-upload hook", e.DtaUploaded)
	registerHook("signed-dta-uploaded", "signed-dta-uploaded", "Signed DTA post-upload hook", e.SignedDtaUploaded)
	registerHook("data-ready", "data-ready", "Mark the requested data as ready", e.DataReady)
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		username := strings.TrimSpace(input.Body.Username)
		if username == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "username is required", nil)
		}
		token, err := signDevToken(authCfg.JWTSecret, username)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func signDevToken(secret, username string) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

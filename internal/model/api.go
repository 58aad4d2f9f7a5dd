package model

import "recipeflow/internal/recipe"

type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error     APIError `json:"error"`
	RequestID string   `json:"request_id,omitempty"`
}

type HealthResponse struct {
	OK bool `json:"ok"`
}

type ReadyResponse struct {
	OK          bool   `json:"ok"`
	ServiceName string `json:"service_name,omitempty"`
}

type RootResponse struct {
	Message string `json:"message"`
}

// RecipeResponse is returned when the model reply decoded into a recipe.
type RecipeResponse struct {
	Success    bool          `json:"success"`
	Transcript string        `json:"transcript"`
	Recipe     recipe.Recipe `json:"recipe"`
}

// RecipeParseFailureResponse is returned when the model reply could not be
// decoded. It is a normal response, not an error envelope.
type RecipeParseFailureResponse struct {
	Success     bool   `json:"success"`
	Error       string `json:"error"`
	RawResponse string `json:"raw_response"`
	Transcript  string `json:"transcript"`
}

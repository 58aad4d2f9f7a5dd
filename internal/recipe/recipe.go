// Package recipe holds the structured recipe record extracted from a video
// and the rules for decoding it from language-model output.
package recipe

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// MaxSteps is the upper bound on steps in a recipe.
const MaxSteps = 10

type Recipe struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Ingredients []Ingredient `json:"ingredients"`
	Steps       []Step       `json:"steps"`
	VideoURL    string       `json:"videourl"`
}

type Ingredient struct {
	Name         string `json:"name"`
	Unit         string `json:"unit"`
	Amount       Text   `json:"amount"`
	ShopURL      string `json:"shop_url"`
	IngredientID string `json:"ingredient_id"`
}

type Step struct {
	Description string `json:"description"`
	IsImportant bool   `json:"isImportant"`
}

// Text is a string that also accepts a bare JSON number, since models often
// emit amounts like 2 or 0.5 instead of "2".
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	if _, err := strconv.ParseFloat(string(data), 64); err != nil {
		return fmt.Errorf("amount must be a string or number, got %s", data)
	}
	*t = Text(data)
	return nil
}

var (
	ErrEmptyPayload = errors.New("empty model response")
	ErrNotAnObject  = errors.New("model response is not a JSON object")
	ErrTooManySteps = fmt.Errorf("recipe has more than %d steps", MaxSteps)
)

// Decode parses a model reply into a Recipe. The reply may be wrapped in a
// code fence. The returned recipe is normalized: every step is marked not
// important and VideoURL is set to videoURL.
func Decode(reply, videoURL string) (Recipe, error) {
	payload := StripCodeFence(reply)
	if payload == "" {
		return Recipe{}, ErrEmptyPayload
	}
	if payload[0] != '{' {
		return Recipe{}, fmt.Errorf("%w (payload snippet: %s)", ErrNotAnObject, snippet(payload))
	}

	var r Recipe
	dec := json.NewDecoder(strings.NewReader(payload))
	if err := dec.Decode(&r); err != nil {
		return Recipe{}, fmt.Errorf("decode recipe: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Recipe{}, errors.New("decode recipe: unexpected data after JSON object")
	}
	if len(r.Steps) > MaxSteps {
		return Recipe{}, fmt.Errorf("%w: got %d", ErrTooManySteps, len(r.Steps))
	}

	return normalize(r, videoURL), nil
}

func normalize(r Recipe, videoURL string) Recipe {
	if r.Ingredients == nil {
		r.Ingredients = []Ingredient{}
	}
	if r.Steps == nil {
		r.Steps = []Step{}
	}
	for i := range r.Steps {
		r.Steps[i].IsImportant = false
	}
	r.VideoURL = videoURL
	return r
}

// CheckIngredientUsage reports ingredients that no step description mentions.
// Matching is a case-insensitive substring search on the ingredient name.
func CheckIngredientUsage(r Recipe) error {
	var unused []string
	for _, ing := range r.Ingredients {
		name := strings.ToLower(strings.TrimSpace(ing.Name))
		if name == "" {
			continue
		}
		used := false
		for _, step := range r.Steps {
			if strings.Contains(strings.ToLower(step.Description), name) {
				used = true
				break
			}
		}
		if !used {
			unused = append(unused, ing.Name)
		}
	}
	if len(unused) > 0 {
		return fmt.Errorf("ingredients not used in any step: %s", strings.Join(unused, ", "))
	}
	return nil
}

func snippet(s string) string {
	clean := strings.Join(strings.Fields(s), " ")
	const limit = 160
	runes := []rune(clean)
	if len(runes) > limit {
		return string(runes[:limit]) + "..."
	}
	return clean
}

package synthesis

import (
	"fmt"
	"strings"

	"recipeflow/internal/recipe"
)

const SystemPrompt = `You are a recipe-extraction expert. Extract the recipe described in the given text and return it as a JSON object.`

const schemaExample = `{
  "title": "Recipe title",
  "description": "Recipe description",
  "ingredients": [
    {
      "name": "Ingredient name",
      "unit": "Unit",
      "amount": "Amount",
      "shop_url": "Purchase link (optional)",
      "ingredient_id": ""
    }
  ],
  "steps": [
    {
      "description": "Cooking step description",
      "isImportant": false
    }
  ],
  "videourl": "Video link"
}`

// BuildUserPrompt embeds the transcript, the source URL, the output schema and
// the structural rules the reply must follow.
func BuildUserPrompt(transcript, videoURL string) string {
	var b strings.Builder
	b.WriteString("Analyze the transcript of the video below and turn it into cooking recipe data in JSON format.\n\n")
	fmt.Fprintf(&b, "Even if the transcript is long, organize the cooking process into at most %d steps following the flow and order of the cooking.\n", recipe.MaxSteps)
	b.WriteString("Keep each step concise, but never omit an important cooking procedure.\n")
	b.WriteString("Every extracted ingredient must actually be used, by name, in the description of at least one step.\n\n")
	b.WriteString("Keep the JSON field names exactly identical to the example below, and output only the JSON object with no additional explanation.\n\n")
	b.WriteString("Example:\n")
	b.WriteString(schemaExample)
	b.WriteString("\n\nRules:\n")
	fmt.Fprintf(&b, "- steps is limited to at most %d entries\n", recipe.MaxSteps)
	b.WriteString("- each step description holds only the essentials and stays concise\n")
	b.WriteString("- every item extracted as an ingredient is used in at least one step\n")
	b.WriteString("- the isImportant field must be false in every step, with no exceptions (never set it to true)\n")
	b.WriteString("- output a single JSON object only, with no prose before or after it\n\n")
	fmt.Fprintf(&b, "Video link: %s\n", videoURL)
	b.WriteString("Transcript:\n")
	b.WriteString(transcript)
	return b.String()
}

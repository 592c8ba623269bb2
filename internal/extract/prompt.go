// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"bytes"
	"text/template"
)

// extractionPromptTmpl is sent once per abstract. The model must answer with
// four labeled lines and use the literal "Not found" for anything it cannot
// identify; ParseResponse depends on that shape.
var extractionPromptTmpl = template.Must(template.New("extraction").Parse(`From the following medical case description, extract these four details:
1. PATIENT: The age and gender.
2. REPORTER: The name or title of the person reporting.
3. EVENT: The primary medical event or symptom.
4. PRODUCT: The drug or medical product involved.

If a detail is not found, write "Not found".
Provide the output as a simple list, exactly in this format:
PATIENT: [result]
REPORTER: [result]
EVENT: [result]
PRODUCT: [result]

Here is the text to analyze:
"{{.Description}}"
`))

// RenderPrompt executes the extraction prompt template for one abstract.
func RenderPrompt(description string) (string, error) {
	var buf bytes.Buffer
	if err := extractionPromptTmpl.Execute(&buf, struct{ Description string }{Description: description}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

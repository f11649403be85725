package agent

import (
	"context"

	"github.com/etnz/taxfolio"
	"github.com/etnz/taxfolio/renderer"
	"google.golang.org/genai"
)

const model = "gemini-2.5-pro"

// creates the facilitator
func newFacilitator(experts ...*Expert) *Expert {
	return &Expert{
		Name:      "Facilitator",
		ModelName: model,
		Config: &genai.GenerateContentConfig{
			Tools: []*genai.Tool{
				{FunctionDeclarations: NewDeclaration(experts)},
			},
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: `
			As a facilitator you are in charge of the conversation and solving the user's request.

			Learn about the expert's skill that you can get from the Tools to ask them questions.
			They are at your service and 100% dedicated to you, they keep context of your previous questions.

			The user is preparing his yearly tax declaration from his broker reports. He primarily
			wants to understand the computed figures: capital gains per method, dividends, the
			withholding tax, and which number goes in which box of the forms.

			Devise a plan of questions to ask to each experts and come up with the best reponse
			to the user's request.
		`}}},
		},
		Library: NewLibrary(experts),
	}
}

// NewTaxAdvisor creates the expert on the tax rules themselves: the gain
// methods, the forms, and anything recent that needs a search.
func NewTaxAdvisor() *Expert {
	return &Expert{
		Name: "TaxAdvisor",
		Description: `This is an expert on French taxation of foreign brokerage accounts.
		He knows the capital gain methods (weighted average cost, FIFO, the crypto regime),
		the declaration forms 2074 and 2086, and withholding taxes on dividends.
		Ask the TaxAdvisor whenever you need regulatory or grounding information.`,
		ModelName: model,
		Config: &genai.GenerateContentConfig{
			Tools: []*genai.Tool{
				{GoogleSearch: &genai.GoogleSearch{}},
			},
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: `
			You are an expert in French taxation of investment income: capital gains on
			securities and crypto assets, dividends and their withholding taxes, and the
			declaration forms 2074 and 2086. You leverage Google Search to ground your
			assertions in the current rules, and you always say which tax year a rule
			applies to.
				`}}},
		},
	}
}

// NewAccountant creates the expert on the user's own computed report. It can
// read every figure of the report through its tools.
func NewAccountant(report *taxfolio.ProcessReport) *Expert {

	lib := []Function{newReportFunc(report)}

	return &Expert{
		Name: "Accountant",
		Description: `This is the Accountant. He has access to the user's computed tax report:
		the final state of every ticker, the aggregated metrics, and the per-sell records
		feeding the declaration forms. Ask him for any concrete figure.`,
		ModelName: model,
		Config: &genai.GenerateContentConfig{
			Tools: []*genai.Tool{
				{FunctionDeclarations: NewDeclaration(lib)},
			},
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: `
				You are an accountant in charge of the user's tax report, computed from his
				broker reports. You know how to use the Tools to read the report: ticker
				states, aggregated metrics and per-sell details. Never invent a figure,
				always read it from the report.
			`}}},
		},
		Library: NewLibrary(lib),
	}
}

// Func implements a simple Function
type Func struct {
	// Declare this function
	Decl *genai.FunctionDeclaration
	// Call this function
	Func func(ctx context.Context, id string, args map[string]any) *genai.FunctionResponse
}

func (f *Func) Declaration() *genai.FunctionDeclaration { return f.Decl }
func (f *Func) Call(ctx context.Context, id string, args map[string]any) *genai.FunctionResponse {
	return f.Func(ctx, id, args)
}

// newReportFunc exposes the computed report as a single read-only tool.
func newReportFunc(report *taxfolio.ProcessReport) *Func {
	return &Func{
		Decl: &genai.FunctionDeclaration{
			Name: "TaxReport",
			Description: `TaxReport returns the user's computed tax report as markdown:
			one row per ticker with quantities and gains per method, followed by the
			aggregated metrics that go into the declaration.`,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: map[string]*genai.Schema{},
			},
			Response: &genai.Schema{
				Type:        genai.TypeString,
				Description: "A markdown-formatted tax report.",
			},
		},
		Func: func(ctx context.Context, id string, args map[string]any) *genai.FunctionResponse {
			return &genai.FunctionResponse{
				ID:   id,
				Name: "TaxReport",
				Response: map[string]any{
					"output": renderer.Summary(report),
				},
			}
		},
	}
}

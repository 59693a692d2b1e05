// Package citation grounds model-claimed quotes in the retrieved passages
// and turns the grounded citations into per-document highlight instructions.
//
// The flow is Parser -> Validator (Locator, Scanner) -> Map. Every step is
// best effort and never returns an error: an unparseable answer becomes a
// raw passthrough and an ungrounded citation is dropped.
package citation

import "go.uber.org/zap"

// Result is the outcome of grounding one model answer.
type Result struct {
	Response     Response
	Validation   Validation
	Cited        []Passage
	Instructions []Instruction
}

// Pipeline wires parser, validator and mapper for one answer at a time.
// It holds no per-query state and is safe for concurrent use.
type Pipeline struct {
	parser    *Parser
	validator *Validator
}

// NewPipeline creates a pipeline with the given matching config.
func NewPipeline(cfg Config, log *zap.Logger) *Pipeline {
	return &Pipeline{parser: NewParser(log), validator: NewValidator(cfg, log)}
}

// Run parses raw and grounds its citations in passages. Raw passthrough
// answers skip validation and produce no instructions.
func (p *Pipeline) Run(raw string, passages []Passage) Result {
	res := Result{Response: p.parser.Parse(raw), Validation: Validation{Indices: []int{}}}
	if res.Response.Raw() {
		return res
	}
	contexts := make([]string, len(passages))
	for i, ps := range passages {
		contexts[i] = ps.Text
	}
	res.Validation = p.validator.Validate(contexts, res.Response.Citations)
	res.Cited = Select(res.Validation.Indices, passages)
	res.Instructions = Map(res.Validation.Indices, passages)
	return res
}

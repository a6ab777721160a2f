// Package verify implements the three statement checks: exact lookup in the
// statement bank, fuzzy similarity against it, and a general knowledge check.
package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vietddude/verdict/internal/bank"
	"github.com/vietddude/verdict/internal/core/domain"
	"github.com/vietddude/verdict/internal/infra/llm/provider"
	"github.com/vietddude/verdict/internal/infra/llm/routing"
)

// Executor runs an operation over the backend chain.
type Executor interface {
	Execute(ctx context.Context, op provider.Operation, onProgress routing.ProgressFunc) (domain.Outcome, error)
}

// Statements is the read side of the statement bank.
type Statements interface {
	Lookup(text string) (bank.Statement, bool)
	KnownTrue() []string
	KnownFalse() []string
}

const bankSource = "bank"

// ExactCheck looks the statement up in the bank. It never calls a backend.
type ExactCheck struct {
	bank Statements
}

func NewExactCheck(b Statements) *ExactCheck {
	return &ExactCheck{bank: b}
}

func (c *ExactCheck) Name() string { return domain.CheckExact }

func (c *ExactCheck) Run(ctx context.Context, item domain.WorkItem, _ routing.ProgressFunc) (domain.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return domain.Outcome{}, err
	}
	s, ok := c.bank.Lookup(item.Input)
	if !ok {
		return domain.Outcome{Source: bankSource}, nil
	}
	return domain.Outcome{
		Found:  true,
		Value:  domain.Verdict(s.IsTrue),
		Note:   fmt.Sprintf("Exact match with statement #%d", s.ID),
		Source: bankSource,
	}, nil
}

// FuzzyCheck asks a backend whether the statement means the same as a known
// true or false statement.
type FuzzyCheck struct {
	bank Statements
	exec Executor
}

func NewFuzzyCheck(b Statements, exec Executor) *FuzzyCheck {
	return &FuzzyCheck{bank: b, exec: exec}
}

func (c *FuzzyCheck) Name() string { return domain.CheckFuzzy }

func (c *FuzzyCheck) Run(ctx context.Context, item domain.WorkItem, progress routing.ProgressFunc) (domain.Outcome, error) {
	known, unknown := c.bank.KnownTrue(), c.bank.KnownFalse()
	if len(known) == 0 && len(unknown) == 0 {
		return domain.Outcome{Note: "statement bank is empty", Source: bankSource}, nil
	}
	return c.exec.Execute(ctx, SimilarityOp(item.Input, known, unknown), progress)
}

type similarityReply struct {
	MatchFound bool    `json:"match_found"`
	Result     *bool   `json:"result"`
	SimilarTo  *string `json:"similar_to"`
}

// SimilarityOp compares statement with the known lists.
func SimilarityOp(statement string, knownTrue, knownFalse []string) provider.Operation {
	return func(ctx context.Context, c provider.Client) (domain.Outcome, error) {
		trueJSON, _ := json.Marshal(nonNil(knownTrue))
		falseJSON, _ := json.Marshal(nonNil(knownFalse))

		var b strings.Builder
		b.WriteString("Compare the input statement against the known true and false statements.\n\n")
		fmt.Fprintf(&b, "Known True: %s\n", trueJSON)
		fmt.Fprintf(&b, "Known False: %s\n\n", falseJSON)
		fmt.Fprintf(&b, "Input Statement: %q\n\n", statement)
		b.WriteString("Task:\n")
		b.WriteString("1. Decide whether the input statement is semantically very similar to any statement in the known lists.\n")
		b.WriteString("2. If it matches a Known True statement, result is true.\n")
		b.WriteString("3. If it matches a Known False statement, result is false.\n")
		b.WriteString("4. If there is no clear match, result is null.\n\n")
		b.WriteString(`Return JSON only: {"match_found": bool, "result": bool or null, "similar_to": "string or null"}`)

		text, err := c.Complete(ctx, provider.Prompt{
			System: "You are a verification assistant.",
			Text:   b.String(),
			JSON:   true,
		})
		if err != nil {
			return domain.Outcome{}, err
		}

		var reply similarityReply
		if err := provider.ParseJSONReply(text, &reply); err != nil {
			return domain.Outcome{}, err
		}
		if !reply.MatchFound || reply.Result == nil {
			return domain.NotFound(), nil
		}
		note := ""
		if reply.SimilarTo != nil && *reply.SimilarTo != "" {
			note = "Similar to: " + *reply.SimilarTo
		}
		return domain.Found(domain.Verdict(*reply.Result), note), nil
	}
}

// KnowledgeCheck asks a backend to judge the statement from general knowledge.
type KnowledgeCheck struct {
	exec Executor
}

func NewKnowledgeCheck(exec Executor) *KnowledgeCheck {
	return &KnowledgeCheck{exec: exec}
}

func (c *KnowledgeCheck) Name() string { return domain.CheckKnowledge }

func (c *KnowledgeCheck) Run(ctx context.Context, item domain.WorkItem, progress routing.ProgressFunc) (domain.Outcome, error) {
	return c.exec.Execute(ctx, TruthOp(item.Input), progress)
}

type truthReply struct {
	IsTrue      *bool  `json:"is_true"`
	Explanation string `json:"explanation"`
}

// TruthOp asks whether statement is factually accurate.
func TruthOp(statement string) provider.Operation {
	return func(ctx context.Context, c provider.Client) (domain.Outcome, error) {
		text, err := c.Complete(ctx, provider.Prompt{
			Text: fmt.Sprintf("Verify the factual accuracy of this statement: %q.\n"+
				`Return JSON only: {"is_true": bool, "explanation": "short explanation"}`, statement),
			JSON: true,
		})
		if err != nil {
			return domain.Outcome{}, err
		}

		var reply truthReply
		if err := provider.ParseJSONReply(text, &reply); err != nil {
			return domain.Outcome{}, err
		}
		if reply.IsTrue == nil {
			return domain.Outcome{}, fmt.Errorf("%w: missing is_true", provider.ErrInvalidReply)
		}
		return domain.Found(domain.Verdict(*reply.IsTrue), reply.Explanation), nil
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

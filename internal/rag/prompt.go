package rag

import (
	"errors"
	"strings"
)

const (
	PlaceholderContext  = "{context}"
	PlaceholderQuestion = "{question}"
)

var ErrInvalidTemplate = errors.New("prompt template must contain {question}")

// PromptTemplate renders the generation prompt. Substitution is a single
// pass, so placeholder text inside the context or question stays literal.
type PromptTemplate struct {
	template string
}

func NewPromptTemplate(template string) (*PromptTemplate, error) {
	if !strings.Contains(template, PlaceholderQuestion) {
		return nil, ErrInvalidTemplate
	}
	return &PromptTemplate{template: template}, nil
}

func (t *PromptTemplate) Render(context, question string) string {
	return strings.NewReplacer(
		PlaceholderContext, context,
		PlaceholderQuestion, question,
	).Replace(t.template)
}

package commands

import (
	"context"
	"fmt"

	terrors "git.home.luguber.info/inful/taxosync/internal/errors"
	"git.home.luguber.info/inful/taxosync/internal/robotoff"
)

// QuestionCmd implements the 'question' command.
type QuestionCmd struct {
	Code string `arg:"" help:"Product barcode"`
	Lang string `short:"l" help:"Question language" default:"en"`
}

func (q *QuestionCmd) Run(g *Global, root *CLI) error {
	ctx := context.Background()
	a, err := root.openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	question, err := a.Robotoff.Question(ctx, q.Code, q.Lang)
	if err != nil {
		return err
	}
	if question == nil {
		fmt.Fprintf(g.Out, "no questions for %s\n", q.Code)
		return nil
	}
	fmt.Fprintf(g.Out, "%s\n  value:   %s\n  insight: %s (%s)\n", question.Question, question.Value, question.InsightID, question.InsightType)
	if question.SourceImageURL != "" {
		fmt.Fprintf(g.Out, "  image:   %s\n", question.SourceImageURL)
	}
	return nil
}

// AnnotateCmd implements the 'annotate' command.
type AnnotateCmd struct {
	Insight string `arg:"" help:"Insight ID from 'question'"`
	Answer  string `arg:"" help:"yes, no or skip"`
}

func (c *AnnotateCmd) Run(g *Global, root *CLI) error {
	answer, err := robotoff.ParseAnswer(c.Answer)
	if err != nil {
		return terrors.ValidationFailed("answer", err.Error())
	}

	ctx := context.Background()
	a, err := root.openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	resp, err := a.Robotoff.Annotate(ctx, c.Insight, answer)
	if err != nil {
		return err
	}
	fmt.Fprintf(g.Out, "%s", resp.Status)
	if resp.Description != "" {
		fmt.Fprintf(g.Out, ": %s", resp.Description)
	}
	fmt.Fprintln(g.Out)
	return nil
}

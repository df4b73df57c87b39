package engine

import (
	"context"
	"fmt"
	"io"
)

// EnsureReady checks that e is reachable and serves the chat and embedding
// models, pulling any that are missing. Progress goes to w. Backends that
// cannot pull fail with ErrPullUnsupported for the first missing model.
func EnsureReady(ctx context.Context, e ModelManager, chatModel, embedModel string, w io.Writer) error {
	if !e.IsRunning(ctx) {
		return fmt.Errorf("inference engine is not reachable; check engine.base_url")
	}

	for _, model := range requiredModels(chatModel, embedModel) {
		if e.HasModel(ctx, model) {
			fmt.Fprintf(w, "model %s: ready\n", model)
			continue
		}

		fmt.Fprintf(w, "model %s: pulling...\n", model)
		if err := e.PullModel(ctx, model, progressPrinter(w)); err != nil {
			return fmt.Errorf("pulling model %s: %w", model, err)
		}
		fmt.Fprintf(w, "model %s: ready\n", model)
	}
	return nil
}

func requiredModels(chatModel, embedModel string) []string {
	var models []string
	if chatModel != "" {
		models = append(models, chatModel)
	}
	if embedModel != "" && embedModel != chatModel {
		models = append(models, embedModel)
	}
	return models
}

// progressPrinter writes a line whenever the status changes or a download
// crosses another ten percent.
func progressPrinter(w io.Writer) func(PullProgress) {
	lastStatus, lastDecile := "", -1
	return func(p PullProgress) {
		decile := -1
		if p.Total > 0 {
			decile = int(p.Completed * 10 / p.Total)
		}
		if p.Status == lastStatus && decile == lastDecile {
			return
		}
		lastStatus, lastDecile = p.Status, decile
		if decile >= 0 {
			fmt.Fprintf(w, "  %s %d%%\n", p.Status, decile*10)
		} else {
			fmt.Fprintf(w, "  %s\n", p.Status)
		}
	}
}

// Package essay generates answers from uploaded study materials in the style
// of previous examples.
package essay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/vietddude/verdict/internal/bank"
	"github.com/vietddude/verdict/internal/core/domain"
	"github.com/vietddude/verdict/internal/infra/llm/provider"
	"github.com/vietddude/verdict/internal/infra/llm/routing"
)

// Executor runs an operation over the backend chain.
type Executor interface {
	Execute(ctx context.Context, op provider.Operation, onProgress routing.ProgressFunc) (domain.Outcome, error)
}

// Materials lists the files to attach.
type Materials interface {
	List() []bank.Material
}

// Examples lists the style examples folded into the prompt.
type Examples interface {
	List() []bank.Example
}

// Generator is the essay check. Upload and generation run as one operation
// so a backend switch re-uploads for the new backend.
type Generator struct {
	exec      Executor
	materials Materials
	examples  Examples
	log       *slog.Logger

	mu      sync.Mutex
	uploads map[string]map[string]provider.FileRef // backend key -> path -> handle
}

func NewGenerator(exec Executor, materials Materials, examples Examples) *Generator {
	return &Generator{
		exec:      exec,
		materials: materials,
		examples:  examples,
		log:       slog.Default().With("component", "essay"),
		uploads:   make(map[string]map[string]provider.FileRef),
	}
}

func (g *Generator) Name() string { return domain.CheckEssay }

func (g *Generator) Run(ctx context.Context, item domain.WorkItem, progress routing.ProgressFunc) (domain.Outcome, error) {
	return g.exec.Execute(ctx, g.op(item.Input, progress), progress)
}

func (g *Generator) op(question string, progress routing.ProgressFunc) provider.Operation {
	notify := func(id domain.BackendIdentity, msg string) {
		if progress != nil {
			progress(routing.Event{Kind: routing.EventAttempt, Backend: id, Message: msg})
		}
	}
	return func(ctx context.Context, c provider.Client) (domain.Outcome, error) {
		id := c.Identity()

		var files []provider.FileRef
		if up, ok := c.(provider.Uploader); ok {
			notify(id, "Uploading...")
			files = g.ensureUploads(ctx, id, up)
		}
		if err := ctx.Err(); err != nil {
			return domain.Outcome{}, err
		}

		notify(id, "Generating...")
		text, err := c.Complete(ctx, provider.Prompt{
			System: g.systemPrompt(),
			Text:   fmt.Sprintf("Question: %s\nAnswer:", question),
			Files:  files,
		})
		if err != nil {
			return domain.Outcome{}, err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return domain.Outcome{}, fmt.Errorf("%w: empty essay", provider.ErrInvalidReply)
		}
		return domain.Found(text, fmt.Sprintf("%d material(s) attached", len(files))), nil
	}
}

// ensureUploads uploads every material not yet known to this backend.
// Failed uploads are logged and left out.
func (g *Generator) ensureUploads(ctx context.Context, id domain.BackendIdentity, up provider.Uploader) []provider.FileRef {
	materials := g.materials.List()
	key := id.Key()

	var files []provider.FileRef
	for _, m := range materials {
		g.mu.Lock()
		ref, ok := g.uploads[key][m.Path]
		g.mu.Unlock()
		if ok {
			files = append(files, ref)
			continue
		}

		ref, err := up.Upload(ctx, m.Path)
		if err != nil {
			if ctx.Err() != nil {
				return files
			}
			g.log.Warn("Material upload failed, skipping", "backend", key, "path", m.Path, "error", err)
			continue
		}

		g.mu.Lock()
		if g.uploads[key] == nil {
			g.uploads[key] = make(map[string]provider.FileRef)
		}
		g.uploads[key][m.Path] = ref
		g.mu.Unlock()
		files = append(files, ref)
	}
	return files
}

func (g *Generator) systemPrompt() string {
	var b strings.Builder
	b.WriteString("You are an expert essay writer. Answer the specific question below using the provided context files.\n\n")
	if examples := g.examples.List(); len(examples) > 0 {
		b.WriteString("Style Examples (Mimic the tone, length, and structure of these):\n")
		for _, ex := range examples {
			fmt.Fprintf(&b, "Q: %s\nA: %s\n---\n", ex.Question, ex.Answer)
		}
	}
	return b.String()
}

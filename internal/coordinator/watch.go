package coordinator

import (
	"log"
	"os"
	"path/filepath"

	"github.com/JODonogh/Visual-Sketch-Sync-sub005/internal/models"
)

// watchLoop consumes settled file-change events and turns them into change
// events through the generator's reverse parse. Runs for the coordinator's
// whole lifetime.
func (c *Coordinator) watchLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev, ok := <-c.watch.Events():
			if !ok {
				return
			}
			c.handleFileEvent(ev.Path)
		}
	}
}

func (c *Coordinator) handleFileEvent(absPath string) {
	rel, err := filepath.Rel(c.opts.WorkspaceDir, absPath)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	doc := c.documentForFile(rel)
	if doc == nil {
		return
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		log.Printf("⚠️  Failed to read changed file %s: %v", rel, err)
		return
	}

	events, diags := c.gen.FromSource(doc, rel, string(data))
	for _, d := range diags {
		log.Printf("  Parse diagnostic: %s", d)
		c.notifyCanvas(doc.ID, &models.GenerationFailure{Path: d.Path, Err: errDiagnostic(d.Message)})
	}
	for _, ev := range events {
		if err := c.Submit(ev); err != nil {
			log.Printf("⚠️  Failed to enqueue file change for %s: %v", doc.ID, err)
		}
	}
	if len(events) > 0 {
		log.Printf("  File %s produced %d change event(s)", rel, len(events))
	}
}

// documentForFile resolves which open document owns a generated file path.
func (c *Coordinator) documentForFile(rel string) *models.DesignDocument {
	for _, doc := range c.store.List() {
		cssPath, htmlPath := c.gen.Files(doc)
		if rel == cssPath || rel == htmlPath {
			return doc
		}
	}
	return nil
}

// notifyCanvas sends a diagnostic to the canvas sessions of a document, if
// its loop is running.
func (c *Coordinator) notifyCanvas(documentID string, err error) {
	c.mu.Lock()
	l := c.loops[documentID]
	c.mu.Unlock()
	if l == nil {
		return
	}
	c.sendTo(l, models.OriginCanvas, models.ErrorMessage(err, ""))
}

type errDiagnostic string

func (e errDiagnostic) Error() string { return string(e) }

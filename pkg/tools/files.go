package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nstogner/agentcore/pkg/content"
)

// MaxReadBytes bounds what read_file returns to the model.
const MaxReadBytes = 256 * 1024

// Workspace confines file tools to a directory.
type Workspace struct {
	Root   string
	Logger *slog.Logger
}

// resolve maps a model-supplied path into the workspace, rejecting escapes.
func (w *Workspace) resolve(path string) (string, error) {
	if path == "" {
		path = "."
	}
	root, err := filepath.Abs(w.Root)
	if err != nil {
		return "", err
	}
	var full string
	if filepath.IsAbs(path) {
		full = filepath.Clean(path)
	} else {
		full = filepath.Join(root, path)
	}
	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside the workspace", path)
	}
	return full, nil
}

func (w *Workspace) logger() *slog.Logger {
	if w.Logger == nil {
		return slog.Default()
	}
	return w.Logger
}

func pathArg(input map[string]any) (string, error) {
	path, ok := input["path"].(string)
	if !ok {
		return "", errors.New("argument 'path' is required and must be a string")
	}
	return path, nil
}

// --- List Files Tool ---

type ListFilesTool struct{ ws *Workspace }

func (t *ListFilesTool) Name() string { return "list_files" }

func (t *ListFilesTool) Description() string {
	return "List files in a directory of the workspace. Directories end with '/'."
}

func (t *ListFilesTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "description": "The directory path to list, relative to the workspace."},
		},
		"required": []string{"path"},
	}
}

func (t *ListFilesTool) Execute(ctx context.Context, input map[string]any, env Env) (Result, error) {
	path, err := pathArg(input)
	if err != nil {
		return Result{}, err
	}
	dir, err := t.ws.resolve(path)
	if err != nil {
		return Result{}, err
	}

	t.ws.logger().Info("Listing files", "path", dir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		suffix := ""
		if e.IsDir() {
			suffix = "/"
		}
		names = append(names, e.Name()+suffix)
	}
	return Result{
		Output:  strings.Join(names, "\n"),
		Summary: fmt.Sprintf("Listed %d entries in %s", len(names), path),
	}, nil
}

// --- Read File Tool ---

type ReadFileTool struct{ ws *Workspace }

func (t *ReadFileTool) Name() string { return "read_file" }

func (t *ReadFileTool) Description() string {
	return "Read the contents of a file in the workspace."
}

func (t *ReadFileTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "description": "The file path to read."},
		},
		"required": []string{"path"},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, input map[string]any, env Env) (Result, error) {
	path, err := pathArg(input)
	if err != nil {
		return Result{}, err
	}
	full, err := t.ws.resolve(path)
	if err != nil {
		return Result{}, err
	}

	t.ws.logger().Info("Reading file", "path", full)
	data, err := os.ReadFile(full)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read file: %w", err)
	}
	out, cut := content.Truncate(string(data), MaxReadBytes)
	if cut {
		out += fmt.Sprintf("\n... (truncated, %d bytes total)", len(data))
	}
	return Result{Output: out, Summary: fmt.Sprintf("Read %s (%d bytes)", path, len(data))}, nil
}

// --- Write File Tool ---

type WriteFileTool struct{ ws *Workspace }

func (t *WriteFileTool) Name() string { return "write_file" }

func (t *WriteFileTool) Description() string {
	return "Write content to a file in the workspace, creating parent directories as needed."
}

func (t *WriteFileTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":    map[string]any{"type": "string", "description": "The file path to write to."},
			"content": map[string]any{"type": "string", "description": "The content to write."},
		},
		"required": []string{"path", "content"},
	}
}

// Risky reports true when the write would replace an existing file.
func (t *WriteFileTool) Risky(input map[string]any) bool {
	path, err := pathArg(input)
	if err != nil {
		return false
	}
	full, err := t.ws.resolve(path)
	if err != nil {
		return false
	}
	_, err = os.Stat(full)
	return !errors.Is(err, fs.ErrNotExist)
}

func (t *WriteFileTool) Execute(ctx context.Context, input map[string]any, env Env) (Result, error) {
	path, err := pathArg(input)
	if err != nil {
		return Result{}, err
	}
	text, ok := input["content"].(string)
	if !ok {
		return Result{}, errors.New("argument 'content' is required and must be a string")
	}
	full, err := t.ws.resolve(path)
	if err != nil {
		return Result{}, err
	}

	t.ws.logger().Info("Writing file", "path", full, "size", len(text))

	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return Result{}, fmt.Errorf("failed to create directories: %w", err)
	}
	if err := os.WriteFile(full, []byte(text), 0644); err != nil {
		return Result{}, fmt.Errorf("failed to write file: %w", err)
	}
	out := fmt.Sprintf("Wrote %d bytes to %s", len(text), path)
	return Result{Output: out, Summary: out}, nil
}

// FileTools returns the list, read and write tools rooted at ws.
func FileTools(ws *Workspace) []Tool {
	return []Tool{&ListFilesTool{ws: ws}, &ReadFileTool{ws: ws}, &WriteFileTool{ws: ws}}
}

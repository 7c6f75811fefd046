package agent

import (
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/nstogner/agentcore/pkg/content"
)

var imageTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// userTurn builds the prompt text and image blocks for an instruction.
// Images are attached inline; other files are listed for the model to open
// with its tools.
func (a *Agent) userTurn(instruction string, files []string) (string, []content.ImageBlock, error) {
	if len(files) == 0 {
		return instruction, nil, nil
	}
	var images []content.ImageBlock
	var b strings.Builder
	b.WriteString(instruction)
	b.WriteString("\n\nAttached files:")
	for _, f := range files {
		b.WriteString("\n - ")
		b.WriteString(f)

		ext := strings.ToLower(filepath.Ext(f))
		mediaType, ok := imageTypes[ext]
		if !ok {
			continue
		}
		data, err := os.ReadFile(a.resolve(f))
		if err != nil {
			return "", nil, fmt.Errorf("reading attachment %q: %w", f, err)
		}
		if mt := mime.TypeByExtension(ext); mt != "" {
			mediaType = mt
		}
		images = append(images, content.ImageBlock{MediaType: mediaType, Data: base64.StdEncoding.EncodeToString(data)})
	}
	return b.String(), images, nil
}

func (a *Agent) resolve(path string) string {
	if filepath.IsAbs(path) || a.cfg.Workspace == "" {
		return path
	}
	return filepath.Join(a.cfg.Workspace, path)
}

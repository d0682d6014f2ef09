// Package skill loads skill bundles: a skill.json manifest plus a SKILL.md
// file whose contents become the agent's system prompt.
package skill

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

const (
	ManifestFile = "skill.json"
	PromptFile   = "SKILL.md"
)

// Manifest 描述技能的元信息。
type Manifest struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Triggers    []string `json:"triggers"`
}

// Skill 是加载后的技能。
type Skill struct {
	Manifest     Manifest
	SystemPrompt string
}

// Load 并发读取 dir 下的清单与提示词文件。任一文件缺失或清单格式错误都会返回错误。
func Load(dir string) (*Skill, error) {
	var (
		manifestRaw []byte
		promptRaw   []byte
	)
	g, _ := errgroup.WithContext(context.Background())
	g.Go(func() error {
		data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
		if err != nil {
			return fmt.Errorf("read skill manifest: %w", err)
		}
		manifestRaw = data
		return nil
	})
	g.Go(func() error {
		data, err := os.ReadFile(filepath.Join(dir, PromptFile))
		if err != nil {
			return fmt.Errorf("read skill prompt: %w", err)
		}
		promptRaw = data
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var manifest Manifest
	if err := json.Unmarshal(manifestRaw, &manifest); err != nil {
		return nil, fmt.Errorf("parse skill manifest: %w", err)
	}
	return &Skill{Manifest: manifest, SystemPrompt: string(promptRaw)}, nil
}

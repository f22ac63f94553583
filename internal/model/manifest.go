package model

import (
	"fmt"
	"strings"
)

// DefaultFilename is the SentencePiece model file fetched by default.
const DefaultFilename = "tokenizer.model"

type Manifest struct {
	Repo  string      `json:"repo"`
	Files []ModelFile `json:"files"`
}

type ModelFile struct {
	Filename string `json:"filename"`
	Revision string `json:"revision"`
	SHA256   string `json:"sha256"`
}

// TokenizerManifest describes a single tokenizer model in a Hugging Face
// repository. An empty sha256 is resolved from the hub's metadata at
// download time; an empty revision means "main".
func TokenizerManifest(repo, filename, revision, sha256 string) (Manifest, error) {
	repo = strings.Trim(strings.TrimSpace(repo), "/")
	if repo == "" || !strings.Contains(repo, "/") {
		return Manifest{}, fmt.Errorf("repo must look like owner/name, got %q", repo)
	}
	if filename == "" {
		filename = DefaultFilename
	}
	if revision == "" {
		revision = "main"
	}
	if sha256 != "" && !isSHA256Hex(sha256) {
		return Manifest{}, fmt.Errorf("invalid sha256 %q", sha256)
	}

	return Manifest{
		Repo: repo,
		Files: []ModelFile{{
			Filename: filename,
			Revision: revision,
			SHA256:   strings.ToLower(sha256),
		}},
	}, nil
}

// Package memory implements validation, canonicalization, and storage of
// project memory cards (§4.4).
package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// Type is the memory card's kind.
type Type string

const (
	TypeDecision   Type = "decision"
	TypeFinding    Type = "finding"
	TypeDefinition Type = "definition"
	TypeNote       Type = "note"
	TypeLink       Type = "link"
	TypeTodo       Type = "todo"
	TypeChat       Type = "chat"
	TypeDoc        Type = "doc"
	TypeCode       Type = "code"
)

// Types lists the canonical type ordering used by pack assembly (§4.6).
var Types = []Type{TypeDecision, TypeFinding, TypeDefinition, TypeNote, TypeLink, TypeTodo, TypeChat, TypeDoc, TypeCode}

func (t Type) valid() bool {
	for _, v := range Types {
		if v == t {
			return true
		}
	}
	return false
}

// Source is where a memory card originated.
type Source string

const (
	SourceManual  Source = "manual"
	SourceChatGPT Source = "chatgpt"
	SourceClaude  Source = "claude"
	SourceCursor  Source = "cursor"
	SourceCodex   Source = "codex"
	SourceAPI     Source = "api"
)

var sources = []Source{SourceManual, SourceChatGPT, SourceClaude, SourceCursor, SourceCodex, SourceAPI}

func (s Source) valid() bool {
	for _, v := range sources {
		if v == s {
			return true
		}
	}
	return false
}

// recognizedMetadataKeys is the allowlist from §3; anything else is rejected.
var recognizedMetadataKeys = map[string]bool{
	"url":       true,
	"file_path": true,
	"language":  true,
	"model":     true,
}

const (
	maxTitleLen   = 500
	maxContentLen = 10_000
	maxTagLen     = 32
	maxTags       = 16
)

// CreateRequest is the JSON body for POST /projects/{id}/memories.
type CreateRequest struct {
	Type     string            `json:"type" validate:"required"`
	Source   string            `json:"source" validate:"required"`
	Title    string            `json:"title"`
	Content  string            `json:"content" validate:"required"`
	Tags     []string          `json:"tags"`
	Metadata map[string]string `json:"metadata"`
}

// Response is the JSON representation of a stored memory.
type Response struct {
	ID          uuid.UUID         `json:"id"`
	ProjectID   uuid.UUID         `json:"project_id"`
	Type        string            `json:"type"`
	Source      string            `json:"source"`
	Title       string            `json:"title"`
	Content     string            `json:"content"`
	Tags        []string          `json:"tags"`
	Metadata    map[string]string `json:"metadata"`
	ContentHash string            `json:"content_hash"`
	CreatedAt   time.Time         `json:"created_at"`
	CreatedBy   *uuid.UUID        `json:"created_by"`
	Idempotent  bool              `json:"idempotent,omitempty"`
}

// Row is the persisted shape of a memory, as scanned from the store.
// CreatedBy is nil when the write came from an API key rather than a
// session: API keys are org-scoped, not user-scoped (spec.md's ApiKey
// entity has no owning user), so there is no user id to record.
type Row struct {
	ID          uuid.UUID
	ProjectID   uuid.UUID
	Type        string
	Source      string
	Title       string
	Content     string
	Tags        []string
	Metadata    map[string]string
	ContentHash string
	CreatedAt   time.Time
	CreatedBy   *uuid.UUID
}

// ToResponse converts a Row to its API Response.
func (r Row) ToResponse() Response {
	return Response{
		ID:          r.ID,
		ProjectID:   r.ProjectID,
		Type:        r.Type,
		Source:      r.Source,
		Title:       r.Title,
		Content:     r.Content,
		Tags:        ensureSlice(r.Tags),
		Metadata:    ensureMap(r.Metadata),
		ContentHash: r.ContentHash,
		CreatedAt:   r.CreatedAt,
		CreatedBy:   r.CreatedBy,
	}
}

func ensureSlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func ensureMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

// canonical is the result of validating and normalizing a CreateRequest.
type canonical struct {
	Type        Type
	Source      Source
	Title       string
	Content     string
	Tags        []string
	Metadata    map[string]string
	ContentHash string
}

// validateAndCanonicalize implements §4.4 steps 2–4: shape checks, then
// trim/NFKC/lowercase normalization, then the content hash.
func validateAndCanonicalize(req CreateRequest) (canonical, error) {
	t := Type(req.Type)
	if !t.valid() {
		return canonical{}, fmt.Errorf("type %q is not recognized", req.Type)
	}
	s := Source(req.Source)
	if !s.valid() {
		return canonical{}, fmt.Errorf("source %q is not recognized", req.Source)
	}

	title := strings.TrimSpace(req.Title)
	if utf8.RuneCountInString(title) > maxTitleLen {
		return canonical{}, fmt.Errorf("title exceeds %d characters", maxTitleLen)
	}

	content := norm.NFKC.String(strings.TrimSpace(req.Content))
	if len(content) == 0 {
		return canonical{}, fmt.Errorf("content must not be empty")
	}
	if utf8.RuneCountInString(content) > maxContentLen {
		return canonical{}, fmt.Errorf("content exceeds %d characters", maxContentLen)
	}

	if len(req.Tags) > maxTags {
		return canonical{}, fmt.Errorf("at most %d tags are allowed", maxTags)
	}
	tags := make([]string, 0, len(req.Tags))
	seenTags := make(map[string]bool, len(req.Tags))
	for _, tag := range req.Tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seenTags[tag] {
			continue
		}
		seenTags[tag] = true
		if utf8.RuneCountInString(tag) > maxTagLen {
			return canonical{}, fmt.Errorf("tag %q exceeds %d characters", tag, maxTagLen)
		}
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	meta := make(map[string]string, len(req.Metadata))
	for k, v := range req.Metadata {
		if !recognizedMetadataKeys[k] {
			return canonical{}, fmt.Errorf("metadata key %q is not recognized", k)
		}
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		meta[k] = v
	}

	return canonical{
		Type:        t,
		Source:      s,
		Title:       title,
		Content:     content,
		Tags:        tags,
		Metadata:    meta,
		ContentHash: contentHash(content),
	}, nil
}

// contentHash computes the lowercase hex SHA-256 digest of NFKC(trim(content)).
// The caller is expected to have already applied NFKC+trim via
// validateAndCanonicalize, which is its only caller.
func contentHash(canonicalContent string) string {
	sum := sha256.Sum256([]byte(canonicalContent))
	return hex.EncodeToString(sum[:])
}

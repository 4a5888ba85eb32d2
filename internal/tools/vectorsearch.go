package tools

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"csmcp/internal/domain"
	"csmcp/internal/infra/gateway"
)

var vectorSearchTool = &mcp.Tool{
	Name: "vector_search",
	Description: "Finds documents semantically matching a prompt through the " +
		"repository's GenAI vector index. Use only when the user asks for " +
		"vector or semantic search.",
}

type VectorSearchInput struct {
	Prompt string `json:"prompt"`
}

// The vector query runs by creating a GenaiVectorQuery persistable; the
// matching chunks come back serialized in its GenaiVectorChunks property.
const vectorQueryMutation = `
    mutation createVectorQuery($repo: String!, $prompt: String!, $maxchunks: Int, $className: String!) {
      createCmAbstractPersistable(
        repositoryIdentifier: $repo
        classIdentifier: $className
        cmAbstractPersistableProperties: {
          properties: [
            {
              GenaiLLMPrompt: $prompt
            }
            {
              GenaiPerformLLMQuery: false
            }
            {
              GenaiMaxDocumentChunks: $maxchunks
            }
          ]
        }
      ) {
        id
        name
        creator
        properties(includes: ["GenaiVectorChunks"]) {
          value
        }
      }
    }`

func (h *Handler) VectorSearch(ctx context.Context, req *mcp.CallToolRequest, in VectorSearchInput) (*mcp.CallToolResult, any, error) {
	const op = "tools.VectorSearch"
	if in.Prompt == "" {
		return nil, nil, domain.E(domain.CodeInvalidArgument, op, "prompt is required", nil)
	}

	data, err := h.repo.Execute(ctx, gateway.Operation{
		Name:  "createVectorQuery",
		Query: vectorQueryMutation,
		Variables: map[string]any{
			"repo":      h.repo.ObjectStore(),
			"prompt":    in.Prompt,
			"maxchunks": h.maxChunks,
			"className": domain.GenaiVectorQueryClass,
		},
	})
	if err != nil {
		return nil, nil, err
	}

	var payload struct {
		CreateCmAbstractPersistable struct {
			Properties []struct {
				Value string `json:"value"`
			} `json:"properties"`
		} `json:"createCmAbstractPersistable"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, nil, domain.E(domain.CodeInternal, op, "decode vector query", err)
	}
	props := payload.CreateCmAbstractPersistable.Properties
	if len(props) == 0 || props[0].Value == "" {
		return jsonResult(map[string]any{"documents": map[string]string{}})
	}

	var chunks struct {
		Docs []struct {
			Doc struct {
				Metadata struct {
					ID            string `json:"id"`
					OriginalTitle string `json:"originaltitle"`
				} `json:"metadata"`
			} `json:"doc"`
			Score float64 `json:"score"`
		} `json:"docs"`
	}
	if err := json.Unmarshal([]byte(props[0].Value), &chunks); err != nil {
		return nil, nil, domain.E(domain.CodeInternal, op, "decode vector chunks", err)
	}

	// Chunks below the relevance threshold are dropped; the rest collapse
	// to one entry per document, keyed by GUID with the original title.
	documents := make(map[string]string)
	for _, item := range chunks.Docs {
		if item.Doc.Metadata.ID == "" || item.Score < h.relevanceScore {
			continue
		}
		id := formatGUID(item.Doc.Metadata.ID)
		if _, seen := documents[id]; !seen {
			documents[id] = item.Doc.Metadata.OriginalTitle
		}
	}
	h.logger.Debug("vector search",
		zap.Int("chunks", len(chunks.Docs)),
		zap.Int("documents", len(documents)),
	)
	return jsonResult(map[string]any{"documents": documents})
}

// formatGUID rewrites a bare 32-character hex string into hyphenated GUID
// form, leaving anything unparsable untouched.
func formatGUID(s string) string {
	u, err := uuid.Parse(s)
	if err != nil {
		return s
	}
	return u.String()
}

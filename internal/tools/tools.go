// Package tools implements the MCP tool surface over the content
// repository. Handlers compose the gateway and the schema cache only;
// credentials and transport concerns never leak into tool code.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"csmcp/internal/domain"
	"csmcp/internal/infra/gateway"
)

// Repository is the slice of the gateway the tools call through.
type Repository interface {
	Execute(ctx context.Context, op gateway.Operation) (json.RawMessage, error)
	Upload(ctx context.Context, op gateway.Operation, files []gateway.UploadFile) (json.RawMessage, error)
	Download(ctx context.Context, downloadURL string) ([]byte, string, error)
	DownloadText(ctx context.Context, downloadURL string) (string, error)
	ObjectStore() string
}

// SchemaCache is the class metadata view the tools consult.
type SchemaCache interface {
	RootClasses() []string
	ClassesUnderRoot(ctx context.Context, root string) ([]domain.ClassDescription, error)
	PropertiesOf(ctx context.Context, class string) (*domain.ClassSchema, error)
}

type Handler struct {
	repo   Repository
	schema SchemaCache
	logger *zap.Logger

	maxChunks      int
	relevanceScore float64
}

// Option adjusts handler behavior beyond its dependencies.
type Option func(*Handler)

// WithVectorSearchTuning sets the chunk budget and minimum relevance score
// for the vector search tool. Non-positive values keep the defaults.
func WithVectorSearchTuning(maxChunks int, relevanceScore float64) Option {
	return func(h *Handler) {
		if maxChunks > 0 {
			h.maxChunks = maxChunks
		}
		if relevanceScore > 0 {
			h.relevanceScore = relevanceScore
		}
	}
}

func NewHandler(repo Repository, schema SchemaCache, logger *zap.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		repo:           repo,
		schema:         schema,
		logger:         logger.Named("tools"),
		maxChunks:      domain.DefaultMaxChunks,
		relevanceScore: domain.DefaultRelevanceScore,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register adds every tool to the server. Input schemas are inferred from
// the handler input types.
func (h *Handler) Register(server *mcp.Server) {
	mcp.AddTool(server, createDocumentTool, h.CreateDocument)
	mcp.AddTool(server, getDocumentPropertiesTool, h.GetDocumentProperties)
	mcp.AddTool(server, updateDocumentPropertiesTool, h.UpdateDocumentProperties)
	mcp.AddTool(server, updateDocumentClassTool, h.UpdateDocumentClass)
	mcp.AddTool(server, checkoutDocumentTool, h.CheckoutDocument)
	mcp.AddTool(server, checkinDocumentTool, h.CheckinDocument)
	mcp.AddTool(server, cancelDocumentCheckoutTool, h.CancelDocumentCheckout)
	mcp.AddTool(server, deleteDocumentVersionTool, h.DeleteDocumentVersion)
	mcp.AddTool(server, deleteVersionSeriesTool, h.DeleteVersionSeries)
	mcp.AddTool(server, getDocumentVersionsTool, h.GetDocumentVersions)
	mcp.AddTool(server, getDocumentTextExtractTool, h.GetDocumentTextExtract)
	mcp.AddTool(server, downloadDocumentContentTool, h.DownloadDocumentContent)

	mcp.AddTool(server, createFolderTool, h.CreateFolder)
	mcp.AddTool(server, deleteFolderTool, h.DeleteFolder)
	mcp.AddTool(server, updateFolderTool, h.UpdateFolder)
	mcp.AddTool(server, getFolderContentsTool, h.GetFolderContents)
	mcp.AddTool(server, unfileDocumentTool, h.UnfileDocument)

	mcp.AddTool(server, getRootClassDescriptionsTool, h.GetRootClassDescriptions)
	mcp.AddTool(server, getClassPropertyDescriptionsTool, h.GetClassPropertyDescriptions)
	mcp.AddTool(server, getSearchableClassPropertiesTool, h.GetSearchableClassProperties)
	mcp.AddTool(server, determineClassTool, h.DetermineClass)

	mcp.AddTool(server, searchRepositoryTool, h.SearchRepository)
	mcp.AddTool(server, lookupDocumentsByNameTool, h.LookupDocumentsByName)
	mcp.AddTool(server, lookupDocumentsByPathTool, h.LookupDocumentsByPath)
	mcp.AddTool(server, vectorSearchTool, h.VectorSearch)

	mcp.AddTool(server, getDocumentAnnotationsTool, h.GetDocumentAnnotations)

	mcp.AddTool(server, createHoldTool, h.CreateHold)
	mcp.AddTool(server, putObjectOnHoldTool, h.PutObjectOnHold)
	mcp.AddTool(server, releaseObjectFromHoldTool, h.ReleaseObjectFromHold)
	mcp.AddTool(server, removeHoldTool, h.RemoveHold)
	mcp.AddTool(server, listHeldObjectsForHoldTool, h.ListHeldObjectsForHold)
	mcp.AddTool(server, listHoldsByNameTool, h.ListHoldsByName)
}

// PropertyValue is one identifier/value pair from the caller.
type PropertyValue struct {
	Identifier string `json:"identifier"`
	Value      any    `json:"value,omitempty"`
}

// ObjectProperties carries the common property inputs for documents and
// folders. Arbitrary class properties travel in Properties.
type ObjectProperties struct {
	Name       string          `json:"name,omitempty"`
	Owner      string          `json:"owner,omitempty"`
	MIMEType   string          `json:"mimeType,omitempty"`
	Properties []PropertyValue `json:"properties,omitempty"`
}

// variable renders the properties input as the GraphQL API expects it:
// named fields at the top level and the free-form properties list as
// single-entry {identifier: value} objects.
func (p *ObjectProperties) variable() map[string]any {
	out := make(map[string]any)
	if p == nil {
		return out
	}
	if p.Name != "" {
		out["name"] = p.Name
	}
	if p.Owner != "" {
		out["owner"] = p.Owner
	}
	if p.MIMEType != "" {
		out["mimeType"] = p.MIMEType
	}
	if len(p.Properties) > 0 {
		props := make([]map[string]any, 0, len(p.Properties))
		for _, prop := range p.Properties {
			props = append(props, map[string]any{prop.Identifier: prop.Value})
		}
		out["properties"] = props
	}
	return out
}

// attachment is one local file staged for a multipart mutation.
type attachment struct {
	varName  string
	fileName string
	mimeType string
	file     *os.File
}

// stageAttachments opens the given paths and assigns each the content
// variable name the mutation will bind it by: contvar, contvar2, contvar3.
func stageAttachments(paths []string) ([]attachment, error) {
	const op = "tools.stageAttachments"
	if len(paths) == 0 {
		return nil, domain.E(domain.CodeInvalidArgument, op, "no file paths provided", nil)
	}

	attachments := make([]attachment, 0, len(paths))
	closeAll := func() {
		for _, a := range attachments {
			_ = a.file.Close()
		}
	}
	for i, path := range paths {
		if path == "" {
			closeAll()
			return nil, domain.E(domain.CodeInvalidArgument, op, "empty file path", nil)
		}
		f, err := os.Open(path)
		if err != nil {
			closeAll()
			return nil, domain.E(domain.CodeInvalidArgument, op, "open "+path, err)
		}
		varName := "contvar"
		if i > 0 {
			varName = fmt.Sprintf("contvar%d", i+1)
		}
		mimeType := mime.TypeByExtension(filepath.Ext(path))
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		attachments = append(attachments, attachment{
			varName:  varName,
			fileName: filepath.Base(path),
			mimeType: mimeType,
			file:     f,
		})
	}
	return attachments, nil
}

// contentElementsVariable builds the contentElements replace list binding
// each attachment to its multipart form variable.
func contentElementsVariable(attachments []attachment) map[string]any {
	replace := make([]map[string]any, 0, len(attachments))
	for i, a := range attachments {
		replace = append(replace, map[string]any{
			"type":        "CONTENT_TRANSFER",
			"contentType": a.mimeType,
			"subContentTransfer": map[string]any{
				"content":       a.varName,
				"retrievalName": a.fileName,
			},
			"insertAction": map[string]any{"newIndex": i},
		})
	}
	return map[string]any{"replace": replace}
}

func uploadFiles(attachments []attachment) []gateway.UploadFile {
	files := make([]gateway.UploadFile, 0, len(attachments))
	for _, a := range attachments {
		files = append(files, gateway.UploadFile{
			Field:    a.varName,
			Name:     a.fileName,
			MIMEType: a.mimeType,
			Content:  a.file,
		})
	}
	return files
}

func closeAttachments(attachments []attachment) {
	for _, a := range attachments {
		_ = a.file.Close()
	}
}

// objectField extracts one named object from a data payload, treating a
// missing or null field as NOT_FOUND.
func objectField(data json.RawMessage, field string) (json.RawMessage, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, domain.E(domain.CodeInternal, "tools.objectField", "decode payload", err)
	}
	value, ok := payload[field]
	if !ok || string(value) == "null" {
		return nil, domain.E(domain.CodeNotFound, "tools.objectField", field+" not found", nil)
	}
	return value, nil
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, domain.E(domain.CodeInternal, "tools.jsonResult", "encode result", err)
	}
	return textResult(string(data))
}

func rawResult(data json.RawMessage) (*mcp.CallToolResult, any, error) {
	return textResult(string(data))
}

func textResult(s string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: s}},
	}, nil, nil
}

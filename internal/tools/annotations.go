package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"csmcp/internal/infra/gateway"
)

var getDocumentAnnotationsTool = &mcp.Tool{
	Name: "get_document_annotations",
	Description: "Lists a document's annotations with their class, audit " +
		"fields and content element summaries.",
	Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
}

func (h *Handler) GetDocumentAnnotations(ctx context.Context, req *mcp.CallToolRequest, in DocumentIdentifierInput) (*mcp.CallToolResult, any, error) {
	const query = `
    query getDocumentAnnotations($object_store_name: String!, $identifier: String!) {
        document(repositoryIdentifier: $object_store_name, identifier: $identifier) {
            annotations{
                annotations{
                    className
                    creator
                    dateCreated
                    dateLastModified
                    id
                    name
                    owner
                    descriptiveText
                    contentSize
                    mimeType
                    annotatedContentElement
                    contentElementsPresent
                    contentElements{
                        className
                        contentType
                        elementSequenceNumber
                    }
                }
            }
        }
    }`

	data, err := h.repo.Execute(ctx, gateway.Operation{
		Name:  "getDocumentAnnotations",
		Query: query,
		Variables: map[string]any{
			"object_store_name": h.repo.ObjectStore(),
			"identifier":        in.Identifier,
		},
	})
	if err != nil {
		return nil, nil, err
	}
	doc, err := objectField(data, "document")
	if err != nil {
		return nil, nil, err
	}
	return rawResult(doc)
}

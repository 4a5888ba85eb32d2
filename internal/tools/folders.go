package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"csmcp/internal/domain"
	"csmcp/internal/infra/gateway"
)

var createFolderTool = &mcp.Tool{
	Name: "create_folder",
	Description: "Creates a folder under a parent folder given by ID or path " +
		"(\"/\" for the root). Extra class properties can be set through " +
		"folder_properties.",
}

var deleteFolderTool = &mcp.Tool{
	Name:        "delete_folder",
	Description: "Deletes a folder by ID or path. The folder must be empty.",
	Annotations: &mcp.ToolAnnotations{DestructiveHint: boolPtr(true)},
}

var updateFolderTool = &mcp.Tool{
	Name: "update_folder",
	Description: "Updates a folder's properties, and optionally changes its " +
		"class when class_identifier is given.",
}

var getFolderContentsTool = &mcp.Tool{
	Name:        "get_folder_contents",
	Description: "Lists the documents filed in a folder, with their properties.",
}

var unfileDocumentTool = &mcp.Tool{
	Name: "unfile_document",
	Description: "Removes a document from a folder without deleting the " +
		"document. Fails when the document is not filed in the folder exactly once.",
}

type CreateFolderInput struct {
	Name             string            `json:"name"`
	ParentFolder     string            `json:"parent_folder"`
	ID               string            `json:"id,omitempty"`
	ClassIdentifier  string            `json:"class_identifier,omitempty"`
	FolderProperties *ObjectProperties `json:"folder_properties,omitempty"`
}

func (h *Handler) CreateFolder(ctx context.Context, req *mcp.CallToolRequest, in CreateFolderInput) (*mcp.CallToolResult, any, error) {
	const mutation = `
    mutation ($repo: String!, $folderProperties: FolderPropertiesInput!, $id: ID!, $className: String!) {
      createFolder(
        repositoryIdentifier: $repo
        folderProperties: $folderProperties
        id: $id
        classIdentifier: $className
      ) {
        id
        name
        className
        pathName
      }
    }`

	id := in.ID
	if id == "" {
		id = "{" + uuid.NewString() + "}"
	}
	class := in.ClassIdentifier
	if class == "" {
		class = domain.DefaultFolderClass
	}

	folderProps := in.FolderProperties.variable()
	folderProps["name"] = in.Name
	folderProps["parent"] = map[string]any{"identifier": in.ParentFolder}

	data, err := h.repo.Execute(ctx, gateway.Operation{
		Name:  "createFolder",
		Query: mutation,
		Variables: map[string]any{
			"repo":             h.repo.ObjectStore(),
			"folderProperties": folderProps,
			"id":               id,
			"className":        class,
		},
	})
	if err != nil {
		return nil, nil, err
	}
	folder, err := objectField(data, "createFolder")
	if err != nil {
		return nil, nil, err
	}
	h.logger.Info("folder created", zap.String("name", in.Name), zap.String("id", id))
	return rawResult(folder)
}

type FolderIdentifierInput struct {
	Identifier string `json:"identifier"`
}

func (h *Handler) DeleteFolder(ctx context.Context, req *mcp.CallToolRequest, in FolderIdentifierInput) (*mcp.CallToolResult, any, error) {
	const mutation = `
    mutation ($id_or_path: String!, $repo: String!) {
      deleteFolder(repositoryIdentifier: $repo, identifier: $id_or_path) {
        id
        className
      }
    }`

	data, err := h.repo.Execute(ctx, gateway.Operation{
		Name:  "deleteFolder",
		Query: mutation,
		Variables: map[string]any{
			"repo":       h.repo.ObjectStore(),
			"id_or_path": in.Identifier,
		},
	})
	if err != nil {
		return nil, nil, err
	}
	return deletedID(data, "deleteFolder")
}

type UpdateFolderInput struct {
	Identifier       string            `json:"identifier"`
	ClassIdentifier  string            `json:"class_identifier,omitempty"`
	FolderProperties *ObjectProperties `json:"folder_properties,omitempty"`
}

func (h *Handler) UpdateFolder(ctx context.Context, req *mcp.CallToolRequest, in UpdateFolderInput) (*mcp.CallToolResult, any, error) {
	const withClass = `
    mutation ($repo: String!, $identifier: String!, $class_identifier: String!,
             $folderProperties: FolderPropertiesInput) {
      updateFolder(
        repositoryIdentifier: $repo
        identifier: $identifier
        classIdentifier: $class_identifier
        folderProperties: $folderProperties
      ) {
        id
        name
        className
        pathName
        properties {
          id
          value
        }
      }
    }`
	const withoutClass = `
    mutation ($repo: String!, $identifier: String!, $folderProperties: FolderPropertiesInput) {
      updateFolder(
        repositoryIdentifier: $repo
        identifier: $identifier
        folderProperties: $folderProperties
      ) {
        id
        name
        className
        pathName
        properties {
          id
          value
        }
      }
    }`

	variables := map[string]any{
		"repo":       h.repo.ObjectStore(),
		"identifier": in.Identifier,
	}
	if props := in.FolderProperties.variable(); len(props) > 0 {
		variables["folderProperties"] = props
	}

	query := withoutClass
	if in.ClassIdentifier != "" {
		query = withClass
		variables["class_identifier"] = in.ClassIdentifier
	}

	data, err := h.repo.Execute(ctx, gateway.Operation{
		Name: "updateFolder", Query: query, Variables: variables,
	})
	if err != nil {
		return nil, nil, err
	}
	folder, err := objectField(data, "updateFolder")
	if err != nil {
		return nil, nil, err
	}
	return rawResult(folder)
}

func (h *Handler) GetFolderContents(ctx context.Context, req *mcp.CallToolRequest, in FolderIdentifierInput) (*mcp.CallToolResult, any, error) {
	const query = `
    query getContainedDocuments($repo: String!, $identifier: String!) {
        folder(repositoryIdentifier: $repo, identifier: $identifier) {
            id
            name
            pathName
            containedDocuments {
                documents {
                    id
                    name
                    className
                    properties {
                        id
                        value
                    }
                }
            }
        }
    }`

	data, err := h.repo.Execute(ctx, gateway.Operation{
		Name:  "getContainedDocuments",
		Query: query,
		Variables: map[string]any{
			"repo":       h.repo.ObjectStore(),
			"identifier": in.Identifier,
		},
	})
	if err != nil {
		return nil, nil, err
	}
	folder, err := objectField(data, "folder")
	if err != nil {
		return nil, nil, err
	}
	return rawResult(folder)
}

type UnfileDocumentInput struct {
	DocumentID       string `json:"document_id"`
	FolderIdentifier string `json:"folder_identifier"`
}

func (h *Handler) UnfileDocument(ctx context.Context, req *mcp.CallToolRequest, in UnfileDocumentInput) (*mcp.CallToolResult, any, error) {
	const op = "tools.UnfileDocument"

	folderValue := in.FolderIdentifier
	if !isGUIDWithBraces(folderValue) {
		id, err := h.lookupFolderID(ctx, in.FolderIdentifier)
		if err != nil {
			return nil, nil, err
		}
		folderValue = id
	}

	const filingsQuery = `
    query ($repo: String!, $where: String!) {
        repositoryObjects(
            repositoryIdentifier: $repo
            from: "ReferentialContainmentRelationship"
            where: $where
        ) {
            independentObjects {
                ... on ReferentialContainmentRelationship {
                    id
                    tail {
                        id
                    }
                    head {
                        id
                    }
                }
            }
        }
    }`

	where := fmt.Sprintf("tail = (%s) and head = (%s)", folderValue, in.DocumentID)
	data, err := h.repo.Execute(ctx, gateway.Operation{
		Name:  "findFilings",
		Query: filingsQuery,
		Variables: map[string]any{
			"repo":  h.repo.ObjectStore(),
			"where": where,
		},
	})
	if err != nil {
		return nil, nil, err
	}

	var payload struct {
		RepositoryObjects struct {
			IndependentObjects []struct {
				ID string `json:"id"`
			} `json:"independentObjects"`
		} `json:"repositoryObjects"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, nil, domain.E(domain.CodeInternal, op, "decode filings", err)
	}

	filings := payload.RepositoryObjects.IndependentObjects
	switch {
	case len(filings) == 0:
		return nil, nil, domain.E(domain.CodeNotFound, op,
			"no such document in the folder", nil)
	case len(filings) > 1:
		return nil, nil, domain.E(domain.CodeInvalidArgument, op,
			"document is filed in the folder more than once", nil)
	}

	const deleteMutation = `
    mutation ($repo: String!, $identifier: String!) {
      deleteReferentialContainmentRelationship(
        repositoryIdentifier: $repo
        identifier: $identifier
      ) {
        id
        className
      }
    }`

	data, err = h.repo.Execute(ctx, gateway.Operation{
		Name:  "deleteFiling",
		Query: deleteMutation,
		Variables: map[string]any{
			"repo":       h.repo.ObjectStore(),
			"identifier": filings[0].ID,
		},
	})
	if err != nil {
		return nil, nil, err
	}
	h.logger.Info("document unfiled",
		zap.String("document", in.DocumentID),
		zap.String("folder", in.FolderIdentifier),
	)
	return deletedID(data, "deleteReferentialContainmentRelationship")
}

// lookupFolderID resolves a folder path to its object ID.
func (h *Handler) lookupFolderID(ctx context.Context, identifier string) (string, error) {
	const op = "tools.lookupFolderID"
	const query = `
    query ($repo: String!, $identifier: String!) {
        folder(repositoryIdentifier: $repo, identifier: $identifier) {
            id
        }
    }`

	data, err := h.repo.Execute(ctx, gateway.Operation{
		Name:  "getFolderId",
		Query: query,
		Variables: map[string]any{
			"repo":       h.repo.ObjectStore(),
			"identifier": identifier,
		},
	})
	if err != nil {
		return "", err
	}
	folder, err := objectField(data, "folder")
	if err != nil {
		return "", err
	}
	var payload struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(folder, &payload); err != nil {
		return "", domain.E(domain.CodeInternal, op, "decode folder", err)
	}
	if payload.ID == "" {
		return "", domain.E(domain.CodeNotFound, op, "folder "+identifier+" not found", nil)
	}
	return payload.ID, nil
}

// isGUIDWithBraces reports whether s is a braced GUID like
// {3F2504E0-4F89-11D3-9A0C-0305E82C3301}.
func isGUIDWithBraces(s string) bool {
	if len(s) < 2 || !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		return false
	}
	_, err := uuid.Parse(s[1 : len(s)-1])
	return err == nil
}

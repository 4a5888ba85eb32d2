package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"csmcp/internal/domain"
	"csmcp/internal/infra/gateway"
)

var createDocumentTool = &mcp.Tool{
	Name: "create_document",
	Description: "Creates a document in the content repository with the given properties. " +
		"Call determine_class first to resolve the class identifier, then " +
		"get_class_property_descriptions for the valid properties of that class. " +
		"Optional file paths are uploaded as the document's content.",
}

var getDocumentPropertiesTool = &mcp.Tool{
	Name: "get_document_properties",
	Description: "Retrieves a document's properties by ID or repository path " +
		"(e.g. \"/Folder1/report.pdf\"). For finding documents by other criteria " +
		"use search_repository or lookup_documents_by_name instead.",
}

var updateDocumentPropertiesTool = &mcp.Tool{
	Name: "update_document_properties",
	Description: "Updates an existing document's properties. Does not change the " +
		"document's class; use update_document_class for that.",
}

var updateDocumentClassTool = &mcp.Tool{
	Name: "update_document_class",
	Description: "Changes a document's class. Properties absent from the new class " +
		"are dropped from the document. Does not update any property values.",
}

var checkoutDocumentTool = &mcp.Tool{
	Name: "checkout_document",
	Description: "Checks out a document, creating a reservation. Optionally downloads " +
		"the current content elements to a local folder.",
}

var checkinDocumentTool = &mcp.Tool{
	Name: "checkin_document",
	Description: "Checks in a checked-out document. The identifier can be the " +
		"reservation ID or the document ID; optional file paths replace the content.",
}

var cancelDocumentCheckoutTool = &mcp.Tool{
	Name:        "cancel_document_checkout",
	Description: "Cancels a document checkout, discarding the reservation.",
}

var deleteDocumentVersionTool = &mcp.Tool{
	Name:        "delete_document_version",
	Description: "Deletes a single document version.",
	Annotations: &mcp.ToolAnnotations{DestructiveHint: boolPtr(true)},
}

var deleteVersionSeriesTool = &mcp.Tool{
	Name:        "delete_version_series",
	Description: "Deletes an entire version series, removing every version of the document.",
	Annotations: &mcp.ToolAnnotations{DestructiveHint: boolPtr(true)},
}

var getDocumentVersionsTool = &mcp.Tool{
	Name: "get_document_versions",
	Description: "Lists every version in the version series containing the document, " +
		"with major and minor version numbers.",
}

var getDocumentTextExtractTool = &mcp.Tool{
	Name: "get_document_text_extract",
	Description: "Retrieves the machine-extracted text of a document from its text " +
		"extract annotations. Multiple extracts are concatenated.",
}

var downloadDocumentContentTool = &mcp.Tool{
	Name: "download_document_content",
	Description: "Downloads a document's content elements into a local folder. " +
		"Filenames come from the server's Content-Disposition header.",
}

func boolPtr(b bool) *bool { return &b }

// CheckinAction mirrors the repository's SubCheckinActionInput.
type CheckinAction struct {
	AutoClassify        *bool `json:"autoClassify,omitempty"`
	CheckinMinorVersion bool  `json:"checkinMinorVersion"`
}

func (a *CheckinAction) variable() map[string]any {
	out := map[string]any{"checkinMinorVersion": false}
	if a == nil {
		return out
	}
	out["checkinMinorVersion"] = a.CheckinMinorVersion
	if a.AutoClassify != nil {
		out["autoClassify"] = *a.AutoClassify
	}
	return out
}

// CheckoutAction mirrors the repository's SubCheckoutActionInput.
type CheckoutAction struct {
	ReservationID   string `json:"reservationId,omitempty"`
	ReservationType string `json:"reservationType,omitempty"`
}

func (a *CheckoutAction) variable() map[string]any {
	out := make(map[string]any)
	if a.ReservationID != "" {
		out["reservationId"] = a.ReservationID
	}
	if a.ReservationType != "" {
		out["reservationType"] = a.ReservationType
	}
	return out
}

const changedDocumentSelection = `
    id
    className
    reservation{
        isReserved
        id
    }
    currentVersion{
        contentElements{
            ... on ContentTransferType {
                retrievalName
                contentType
                contentSize
                downloadUrl
            }
        }
    }
    properties {
      id
      value
    }`

type CreateDocumentInput struct {
	ClassIdentifier        string            `json:"class_identifier,omitempty"`
	ID                     string            `json:"id,omitempty"`
	DocumentProperties     *ObjectProperties `json:"document_properties,omitempty"`
	FileInFolderIdentifier string            `json:"file_in_folder_identifier,omitempty"`
	CheckinAction          *CheckinAction    `json:"checkin_action,omitempty"`
	FilePaths              []string          `json:"file_paths,omitempty"`
}

func (h *Handler) CreateDocument(ctx context.Context, req *mcp.CallToolRequest, in CreateDocumentInput) (*mcp.CallToolResult, any, error) {
	const mutation = `
    mutation ($object_store_name: String!, $class_identifier: String, $id: ID,
             $document_properties: DocumentPropertiesInput, $file_in_folder_identifier: String,
             $checkin_action: SubCheckinActionInput) {
      createDocument(
        repositoryIdentifier: $object_store_name
        classIdentifier: $class_identifier
        id: $id
        documentProperties: $document_properties
        fileInFolderIdentifier: $file_in_folder_identifier
        checkinAction: $checkin_action
      ) {
        id
        className
        properties {
          id
          value
        }
      }
    }`

	variables := map[string]any{
		"object_store_name": h.repo.ObjectStore(),
		"checkin_action":    in.CheckinAction.variable(),
	}
	if in.ClassIdentifier != "" {
		variables["class_identifier"] = in.ClassIdentifier
	}
	if in.ID != "" {
		variables["id"] = in.ID
	}
	if in.FileInFolderIdentifier != "" {
		variables["file_in_folder_identifier"] = in.FileInFolderIdentifier
	}

	docProps := in.DocumentProperties.variable()

	op := gateway.Operation{Name: "createDocument", Query: mutation, Variables: variables}

	var data json.RawMessage
	var err error
	if len(in.FilePaths) > 0 {
		attachments, stageErr := stageAttachments(in.FilePaths)
		if stageErr != nil {
			return nil, nil, stageErr
		}
		defer closeAttachments(attachments)

		docProps["contentElements"] = contentElementsVariable(attachments)
		variables["document_properties"] = docProps

		h.logger.Info("creating document with content upload",
			zap.Int("files", len(attachments)))
		data, err = h.repo.Upload(ctx, op, uploadFiles(attachments))
	} else {
		if len(docProps) > 0 {
			variables["document_properties"] = docProps
		}
		data, err = h.repo.Execute(ctx, op)
	}
	if err != nil {
		return nil, nil, err
	}

	doc, err := objectField(data, "createDocument")
	if err != nil {
		return nil, nil, err
	}
	return rawResult(doc)
}

type DocumentIdentifierInput struct {
	Identifier string `json:"identifier"`
}

func (h *Handler) GetDocumentProperties(ctx context.Context, req *mcp.CallToolRequest, in DocumentIdentifierInput) (*mcp.CallToolResult, any, error) {
	const query = `
    query ($object_store_name: String!, $identifier: String!) {
        document(repositoryIdentifier: $object_store_name, identifier: $identifier) {
            id
            name
            className
            properties {
                id
                value
            }
        }
    }`

	data, err := h.repo.Execute(ctx, gateway.Operation{
		Name:  "getDocument",
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

type UpdateDocumentPropertiesInput struct {
	Identifier         string            `json:"identifier"`
	DocumentProperties *ObjectProperties `json:"document_properties,omitempty"`
}

func (h *Handler) UpdateDocumentProperties(ctx context.Context, req *mcp.CallToolRequest, in UpdateDocumentPropertiesInput) (*mcp.CallToolResult, any, error) {
	const mutation = `
    mutation ($object_store_name: String!, $identifier: String!,
             $document_properties: DocumentPropertiesInput) {
      updateDocument(
        repositoryIdentifier: $object_store_name
        identifier: $identifier
        documentProperties: $document_properties
      ) {
        id
        className
        properties {
          id
          value
        }
      }
    }`

	variables := map[string]any{
		"object_store_name": h.repo.ObjectStore(),
		"identifier":        in.Identifier,
	}
	if props := in.DocumentProperties.variable(); len(props) > 0 {
		variables["document_properties"] = props
	}

	data, err := h.repo.Execute(ctx, gateway.Operation{
		Name: "updateDocument", Query: mutation, Variables: variables,
	})
	if err != nil {
		return nil, nil, err
	}
	doc, err := objectField(data, "updateDocument")
	if err != nil {
		return nil, nil, err
	}
	return rawResult(doc)
}

type UpdateDocumentClassInput struct {
	Identifier      string `json:"identifier"`
	ClassIdentifier string `json:"class_identifier"`
}

func (h *Handler) UpdateDocumentClass(ctx context.Context, req *mcp.CallToolRequest, in UpdateDocumentClassInput) (*mcp.CallToolResult, any, error) {
	const mutation = `
    mutation ($object_store_name: String!, $identifier: String!, $class_identifier: String!) {
      updateDocument(
        repositoryIdentifier: $object_store_name
        identifier: $identifier
        classIdentifier: $class_identifier
      ) {
        id
        className
        properties {
          id
          value
        }
      }
    }`

	data, err := h.repo.Execute(ctx, gateway.Operation{
		Name:  "updateDocumentClass",
		Query: mutation,
		Variables: map[string]any{
			"object_store_name": h.repo.ObjectStore(),
			"identifier":        in.Identifier,
			"class_identifier":  in.ClassIdentifier,
		},
	})
	if err != nil {
		return nil, nil, err
	}
	doc, err := objectField(data, "updateDocument")
	if err != nil {
		return nil, nil, err
	}
	return rawResult(doc)
}

type CheckoutDocumentInput struct {
	Identifier         string            `json:"identifier"`
	DocumentProperties *ObjectProperties `json:"document_properties,omitempty"`
	CheckoutAction     *CheckoutAction   `json:"checkout_action,omitempty"`
	DownloadFolderPath string            `json:"download_folder_path,omitempty"`
}

func (h *Handler) CheckoutDocument(ctx context.Context, req *mcp.CallToolRequest, in CheckoutDocumentInput) (*mcp.CallToolResult, any, error) {
	const mutation = `
    mutation ($object_store_name: String!, $identifier: String!,
             $document_properties: DocumentPropertiesInput, $checkout_action: SubCheckoutActionInput) {
      checkoutDocument(
        repositoryIdentifier: $object_store_name
        identifier: $identifier
        documentProperties: $document_properties
        checkoutAction: $checkout_action
      ) {` + changedDocumentSelection + `
      }
    }`

	variables := map[string]any{
		"object_store_name": h.repo.ObjectStore(),
		"identifier":        in.Identifier,
	}
	if props := in.DocumentProperties.variable(); len(props) > 0 {
		variables["document_properties"] = props
	}
	if in.CheckoutAction != nil {
		variables["checkout_action"] = in.CheckoutAction.variable()
	}

	data, err := h.repo.Execute(ctx, gateway.Operation{
		Name: "checkoutDocument", Query: mutation, Variables: variables,
	})
	if err != nil {
		return nil, nil, err
	}
	doc, err := objectField(data, "checkoutDocument")
	if err != nil {
		return nil, nil, err
	}

	if in.DownloadFolderPath != "" {
		saved, err := h.saveContentElements(ctx, doc, in.DownloadFolderPath)
		if err != nil {
			return nil, nil, err
		}
		return jsonResult(map[string]any{
			"document":         json.RawMessage(doc),
			"downloaded_files": saved,
		})
	}
	return rawResult(doc)
}

type CheckinDocumentInput struct {
	Identifier         string            `json:"identifier"`
	CheckinAction      *CheckinAction    `json:"checkin_action,omitempty"`
	DocumentProperties *ObjectProperties `json:"document_properties,omitempty"`
	FilePaths          []string          `json:"file_paths,omitempty"`
}

func (h *Handler) CheckinDocument(ctx context.Context, req *mcp.CallToolRequest, in CheckinDocumentInput) (*mcp.CallToolResult, any, error) {
	const mutation = `
    mutation ($object_store_name: String!, $identifier: String!,
             $document_properties: DocumentPropertiesInput, $checkin_action: SubCheckinActionInput!) {
      checkinDocument(
        repositoryIdentifier: $object_store_name
        identifier: $identifier
        documentProperties: $document_properties
        checkinAction: $checkin_action
      ) {` + changedDocumentSelection + `
      }
    }`

	variables := map[string]any{
		"object_store_name": h.repo.ObjectStore(),
		"identifier":        in.Identifier,
		"checkin_action":    in.CheckinAction.variable(),
	}
	docProps := in.DocumentProperties.variable()

	op := gateway.Operation{Name: "checkinDocument", Query: mutation, Variables: variables}

	var data json.RawMessage
	var err error
	if len(in.FilePaths) > 0 {
		attachments, stageErr := stageAttachments(in.FilePaths)
		if stageErr != nil {
			return nil, nil, stageErr
		}
		defer closeAttachments(attachments)

		docProps["contentElements"] = contentElementsVariable(attachments)
		variables["document_properties"] = docProps

		h.logger.Info("checking in document with content upload",
			zap.Int("files", len(attachments)))
		data, err = h.repo.Upload(ctx, op, uploadFiles(attachments))
	} else {
		if len(docProps) > 0 {
			variables["document_properties"] = docProps
		}
		data, err = h.repo.Execute(ctx, op)
	}
	if err != nil {
		return nil, nil, err
	}

	doc, err := objectField(data, "checkinDocument")
	if err != nil {
		return nil, nil, err
	}
	return rawResult(doc)
}

func (h *Handler) CancelDocumentCheckout(ctx context.Context, req *mcp.CallToolRequest, in DocumentIdentifierInput) (*mcp.CallToolResult, any, error) {
	const mutation = `
    mutation ($object_store_name: String!, $identifier: String!) {
      cancelDocumentCheckout(
        repositoryIdentifier: $object_store_name
        identifier: $identifier
      ) {` + changedDocumentSelection + `
      }
    }`

	data, err := h.repo.Execute(ctx, gateway.Operation{
		Name:  "cancelDocumentCheckout",
		Query: mutation,
		Variables: map[string]any{
			"object_store_name": h.repo.ObjectStore(),
			"identifier":        in.Identifier,
		},
	})
	if err != nil {
		return nil, nil, err
	}
	doc, err := objectField(data, "cancelDocumentCheckout")
	if err != nil {
		return nil, nil, err
	}
	return rawResult(doc)
}

func (h *Handler) DeleteDocumentVersion(ctx context.Context, req *mcp.CallToolRequest, in DocumentIdentifierInput) (*mcp.CallToolResult, any, error) {
	const mutation = `
    mutation ($object_store_name: String!, $identifier: String!) {
      deleteDocument(
        repositoryIdentifier: $object_store_name
        identifier: $identifier
      ) {
        id
        className
      }
    }`

	data, err := h.repo.Execute(ctx, gateway.Operation{
		Name:  "deleteDocument",
		Query: mutation,
		Variables: map[string]any{
			"object_store_name": h.repo.ObjectStore(),
			"identifier":        in.Identifier,
		},
	})
	if err != nil {
		return nil, nil, err
	}
	return deletedID(data, "deleteDocument")
}

type DeleteVersionSeriesInput struct {
	VersionSeriesID string `json:"version_series_id"`
}

func (h *Handler) DeleteVersionSeries(ctx context.Context, req *mcp.CallToolRequest, in DeleteVersionSeriesInput) (*mcp.CallToolResult, any, error) {
	const mutation = `
    mutation ($object_store_name: String!, $identifier: String!) {
      deleteVersionSeries(
        repositoryIdentifier: $object_store_name
        identifier: $identifier
      ) {
        id
        className
      }
    }`

	data, err := h.repo.Execute(ctx, gateway.Operation{
		Name:  "deleteVersionSeries",
		Query: mutation,
		Variables: map[string]any{
			"object_store_name": h.repo.ObjectStore(),
			"identifier":        in.VersionSeriesID,
		},
	})
	if err != nil {
		return nil, nil, err
	}
	return deletedID(data, "deleteVersionSeries")
}

func deletedID(data json.RawMessage, field string) (*mcp.CallToolResult, any, error) {
	obj, err := objectField(data, field)
	if err != nil {
		return nil, nil, err
	}
	var payload struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(obj, &payload); err != nil {
		return nil, nil, domain.E(domain.CodeInternal, "tools.deletedID", "decode "+field, err)
	}
	return textResult(payload.ID)
}

func (h *Handler) GetDocumentVersions(ctx context.Context, req *mcp.CallToolRequest, in DocumentIdentifierInput) (*mcp.CallToolResult, any, error) {
	const query = `
    query getDocumentVersions($object_store_name: String!, $identifier: String!){
        document(
            repositoryIdentifier: $object_store_name
            identifier: $identifier
        ) {
            versionSeries {
                versions {
                    versionables {
                        id
                        majorVersionNumber
                        minorVersionNumber
                    }
                }
            }
        }
    }`

	data, err := h.repo.Execute(ctx, gateway.Operation{
		Name:  "getDocumentVersions",
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

// TextExtractSeparator joins the contents of multiple text extract
// annotations into one result.
const TextExtractSeparator = "\n\n"

type annotationEnvelope struct {
	Annotations struct {
		Annotations []struct {
			ID                      string          `json:"id"`
			Name                    string          `json:"name"`
			ClassName               string          `json:"className"`
			AnnotatedContentElement *int            `json:"annotatedContentElement"`
			ContentElements         []contentRecord `json:"contentElements"`
		} `json:"annotations"`
	} `json:"annotations"`
}

type contentRecord struct {
	DownloadURL   string `json:"downloadUrl"`
	RetrievalName string `json:"retrievalName"`
	ContentSize   int64  `json:"contentSize"`
}

func (h *Handler) GetDocumentTextExtract(ctx context.Context, req *mcp.CallToolRequest, in DocumentIdentifierInput) (*mcp.CallToolResult, any, error) {
	const query = `
    query getDocumentTextExtract($object_store_name: String!, $identifier: String!) {
        document(repositoryIdentifier: $object_store_name, identifier: $identifier) {
            annotations{
                annotations{
                    id
                    name
                    className
                    annotatedContentElement
                    descriptiveText
                    contentElements{
                        ... on ContentTransfer{
                            downloadUrl
                            retrievalName
                            contentSize
                        }
                    }
                }
            }
        }
    }`

	data, err := h.repo.Execute(ctx, gateway.Operation{
		Name:  "getDocumentTextExtract",
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

	var envelope annotationEnvelope
	if err := json.Unmarshal(doc, &envelope); err != nil {
		return nil, nil, domain.E(domain.CodeInternal, "tools.GetDocumentTextExtract", "decode annotations", err)
	}

	var parts []string
	for _, annotation := range envelope.Annotations.Annotations {
		if annotation.ClassName != domain.TextExtractClass || annotation.AnnotatedContentElement == nil {
			continue
		}
		for _, element := range annotation.ContentElements {
			if element.DownloadURL == "" {
				continue
			}
			text, err := h.repo.DownloadText(ctx, element.DownloadURL)
			if err != nil {
				return nil, nil, err
			}
			if text != "" {
				parts = append(parts, text)
			}
		}
	}
	return textResult(strings.Join(parts, TextExtractSeparator))
}

type DownloadDocumentContentInput struct {
	Identifier         string `json:"identifier"`
	DownloadFolderPath string `json:"download_folder_path"`
}

func (h *Handler) DownloadDocumentContent(ctx context.Context, req *mcp.CallToolRequest, in DownloadDocumentContentInput) (*mcp.CallToolResult, any, error) {
	const query = `
    query getDocumentContent($object_store_name: String!, $identifier: String!) {
        document(repositoryIdentifier: $object_store_name, identifier: $identifier) {
            id
            name
            currentVersion{
                contentElements{
                    ... on ContentTransferType {
                        retrievalName
                        contentType
                        contentSize
                        downloadUrl
                    }
                }
            }
        }
    }`

	data, err := h.repo.Execute(ctx, gateway.Operation{
		Name:  "getDocumentContent",
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

	saved, err := h.saveContentElements(ctx, doc, in.DownloadFolderPath)
	if err != nil {
		return nil, nil, err
	}
	if len(saved) == 0 {
		return nil, nil, domain.E(domain.CodeNotFound, "tools.DownloadDocumentContent",
			"document has no downloadable content", nil)
	}
	return jsonResult(map[string]any{"downloaded_files": saved})
}

// saveContentElements downloads every content element found in a changed
// document payload into dir and returns the written paths.
func (h *Handler) saveContentElements(ctx context.Context, doc json.RawMessage, dir string) ([]string, error) {
	const op = "tools.saveContentElements"

	var payload struct {
		CurrentVersion struct {
			ContentElements []contentRecord `json:"contentElements"`
		} `json:"currentVersion"`
	}
	if err := json.Unmarshal(doc, &payload); err != nil {
		return nil, domain.E(domain.CodeInternal, op, "decode content elements", err)
	}

	var saved []string
	for _, element := range payload.CurrentVersion.ContentElements {
		if element.DownloadURL == "" {
			continue
		}
		data, filename, err := h.repo.Download(ctx, element.DownloadURL)
		if err != nil {
			return nil, err
		}
		if filename == "" {
			filename = element.RetrievalName
		}
		if filename == "" {
			filename = uuid.NewString()
		}
		target := filepath.Join(dir, filepath.Base(filename))
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return nil, domain.E(domain.CodeInternal, op, "write "+target, err)
		}
		h.logger.Info("content element downloaded",
			zap.String("file", target),
			zap.Int("bytes", len(data)),
		)
		saved = append(saved, target)
	}
	return saved, nil
}

package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"csmcp/internal/domain"
	"csmcp/internal/infra/gateway"
)

var createHoldTool = &mcp.Tool{
	Name: "create_hold",
	Description: "Creates a legal hold with the given display name. Put " +
		"documents, folders or annotations on the hold with put_object_on_hold.",
}

var putObjectOnHoldTool = &mcp.Tool{
	Name: "put_object_on_hold",
	Description: "Puts an object on a legal hold. The held object is named by " +
		"its class and ID, the hold by its ID. An object already on the hold " +
		"does not need to be added again.",
}

var releaseObjectFromHoldTool = &mcp.Tool{
	Name: "release_object_from_hold",
	Description: "Releases one object from a legal hold. When the object is " +
		"not on the hold, reports that no action was needed.",
	Annotations: &mcp.ToolAnnotations{DestructiveHint: boolPtr(true)},
}

var removeHoldTool = &mcp.Tool{
	Name:        "remove_hold",
	Description: "Deletes a legal hold, releasing every object it held.",
	Annotations: &mcp.ToolAnnotations{DestructiveHint: boolPtr(true)},
}

var listHeldObjectsForHoldTool = &mcp.Tool{
	Name:        "list_held_objects_for_hold",
	Description: "Lists the object references a legal hold currently holds.",
	Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
}

var listHoldsByNameTool = &mcp.Tool{
	Name: "list_holds_by_name",
	Description: "Finds legal holds whose display name contains the given " +
		"text, case-insensitive.",
	Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
}

type CreateHoldInput struct {
	DisplayName string `json:"display_name"`
	HoldClass   string `json:"hold_class,omitempty"`
}

func (h *Handler) CreateHold(ctx context.Context, req *mcp.CallToolRequest, in CreateHoldInput) (*mcp.CallToolResult, any, error) {
	const op = "tools.CreateHold"
	const mutation = `
    mutation ($repo: String!, $class_name: String!, $display_name: String!) {
      changeObject(
        repositoryIdentifier: $repo
        properties: [
          {
            displayName: $display_name
          }
        ]
        actions: [
          {
            type: CREATE
            subCreateAction: {
              classId: $class_name
            }
          }
        ]
      ) {
        className
        properties {
          id
          value
        }
      }
    }`

	if in.DisplayName == "" {
		return nil, nil, domain.E(domain.CodeInvalidArgument, op, "display_name is required", nil)
	}
	class := in.HoldClass
	if class == "" {
		class = domain.CmHoldClass
	}

	data, err := h.repo.Execute(ctx, gateway.Operation{
		Name:  "createHold",
		Query: mutation,
		Variables: map[string]any{
			"repo":         h.repo.ObjectStore(),
			"class_name":   class,
			"display_name": in.DisplayName,
		},
	})
	if err != nil {
		return nil, nil, err
	}
	hold, err := objectField(data, "changeObject")
	if err != nil {
		return nil, nil, err
	}
	h.logger.Info("hold created", zap.String("name", in.DisplayName), zap.String("class", class))
	return rawResult(hold)
}

type PutObjectOnHoldInput struct {
	HoldID    string `json:"hold_id"`
	HeldClass string `json:"held_class"`
	HeldID    string `json:"held_id"`
}

func (h *Handler) PutObjectOnHold(ctx context.Context, req *mcp.CallToolRequest, in PutObjectOnHoldInput) (*mcp.CallToolResult, any, error) {
	const mutation = `
    mutation ($repo: String!, $hold_identifier: String!, $held_class_name: String!, $held_identifier: String!) {
      changeObject(
        repositoryIdentifier: $repo
        objectProperties: [
          {
            identifier: "Hold"
            objectReferenceValue: {
              identifier: $hold_identifier
            }
          }
          {
            identifier: "HeldObject"
            objectReferenceValue: {
              classIdentifier: $held_class_name
              identifier: $held_identifier
            }
          }
        ]
        actions: [
          {
            type: CREATE
            subCreateAction: {
              classId: "CmHoldRelationship"
            }
          }
        ]
      ) {
        className
        properties {
          id
          value
        }
      }
    }`

	data, err := h.repo.Execute(ctx, gateway.Operation{
		Name:  "putObjectOnHold",
		Query: mutation,
		Variables: map[string]any{
			"repo":            h.repo.ObjectStore(),
			"hold_identifier": in.HoldID,
			"held_class_name": in.HeldClass,
			"held_identifier": in.HeldID,
		},
	})
	if err != nil {
		return nil, nil, err
	}
	relationship, err := objectField(data, "changeObject")
	if err != nil {
		return nil, nil, err
	}
	h.logger.Info("object put on hold",
		zap.String("hold", in.HoldID),
		zap.String("held", in.HeldID),
	)
	return rawResult(relationship)
}

type ReleaseObjectFromHoldInput struct {
	HoldID string `json:"hold_id"`
	HeldID string `json:"held_id"`
}

func (h *Handler) ReleaseObjectFromHold(ctx context.Context, req *mcp.CallToolRequest, in ReleaseObjectFromHoldInput) (*mcp.CallToolResult, any, error) {
	relationshipID, err := h.findHoldRelationshipID(ctx, in.HoldID, in.HeldID)
	if err != nil {
		return nil, nil, err
	}
	if relationshipID == "" {
		return jsonResult(map[string]any{
			"status":  "no_action_needed",
			"message": "No hold relationship found between the specified hold and held object.",
		})
	}

	const mutation = `
    mutation ($repo: String!, $hold_relationship_class_name: String!, $hold_relationship_id: String!) {
      changeObject(
        repositoryIdentifier: $repo
        identifier: $hold_relationship_id
        classIdentifier: $hold_relationship_class_name
        actions: [
          {
            type: DELETE
          }
        ]
      ) {
        className
        objectReference {
          repositoryIdentifier
          classIdentifier
          identifier
        }
        properties {
          id
          value
        }
      }
    }`

	data, err := h.repo.Execute(ctx, gateway.Operation{
		Name:  "releaseObjectFromHold",
		Query: mutation,
		Variables: map[string]any{
			"repo":                         h.repo.ObjectStore(),
			"hold_relationship_class_name": domain.CmHoldRelationshipClass,
			"hold_relationship_id":         relationshipID,
		},
	})
	if err != nil {
		return nil, nil, err
	}
	released, err := objectField(data, "changeObject")
	if err != nil {
		return nil, nil, err
	}
	h.logger.Info("object released from hold",
		zap.String("hold", in.HoldID),
		zap.String("held", in.HeldID),
	)
	return rawResult(released)
}

type RemoveHoldInput struct {
	HoldID string `json:"hold_id"`
}

func (h *Handler) RemoveHold(ctx context.Context, req *mcp.CallToolRequest, in RemoveHoldInput) (*mcp.CallToolResult, any, error) {
	const mutation = `
    mutation ($repo: String!, $hold_identifier: String!) {
      changeObject(
        repositoryIdentifier: $repo
        identifier: $hold_identifier
        classIdentifier: "CmHold"
        actions: [
          {
            type: DELETE
          }
        ]
      ) {
        className
        objectReference {
          repositoryIdentifier
          classIdentifier
          identifier
        }
        properties(includes: ["Id"]) {
          id
          label
          type
          cardinality
          value
        }
      }
    }`

	data, err := h.repo.Execute(ctx, gateway.Operation{
		Name:  "removeHold",
		Query: mutation,
		Variables: map[string]any{
			"repo":            h.repo.ObjectStore(),
			"hold_identifier": in.HoldID,
		},
	})
	if err != nil {
		return nil, nil, err
	}
	removed, err := objectField(data, "changeObject")
	if err != nil {
		return nil, nil, err
	}
	h.logger.Info("hold removed", zap.String("hold", in.HoldID))
	return rawResult(removed)
}

func (h *Handler) ListHeldObjectsForHold(ctx context.Context, req *mcp.CallToolRequest, in RemoveHoldInput) (*mcp.CallToolResult, any, error) {
	relationships, err := h.holdRelationships(ctx, in.HoldID)
	if err != nil {
		return nil, nil, err
	}

	// Each relationship carries the held object as a reference: repository,
	// class and object identifiers.
	heldObjects := make([]json.RawMessage, 0, len(relationships))
	for _, rel := range relationships {
		for _, prop := range rel.Properties {
			if prop.ID == domain.HeldObjectProperty {
				heldObjects = append(heldObjects, prop.Value)
			}
		}
	}
	h.logger.Debug("held objects listed",
		zap.String("hold", in.HoldID),
		zap.Int("count", len(heldObjects)),
	)
	return jsonResult(map[string]any{"held_objects": heldObjects})
}

type ListHoldsByNameInput struct {
	DisplayName string `json:"display_name"`
}

func (h *Handler) ListHoldsByName(ctx context.Context, req *mcp.CallToolRequest, in ListHoldsByNameInput) (*mcp.CallToolResult, any, error) {
	const query = `
    query getHoldsGivenAName($repo: String!, $where: String!) {
        repositoryObjects(
            repositoryIdentifier: $repo
            from: "CmHold"
            where: $where
        ) {
            independentObjects {
                className
                properties(includes: ["Id", "DisplayName", "Creator"]) {
                    id
                    value
                }
            }
        }
    }`

	where := fmt.Sprintf("LOWER([DisplayName]) LIKE LOWER('%%%s%%')", in.DisplayName)
	data, err := h.repo.Execute(ctx, gateway.Operation{
		Name:  "getHoldsGivenAName",
		Query: query,
		Variables: map[string]any{
			"repo":  h.repo.ObjectStore(),
			"where": where,
		},
	})
	if err != nil {
		return nil, nil, err
	}
	holds, err := objectField(data, "repositoryObjects")
	if err != nil {
		return nil, nil, err
	}
	return rawResult(holds)
}

type relationshipProperty struct {
	ID    string          `json:"id"`
	Value json.RawMessage `json:"value"`
}

type holdRelationship struct {
	Properties []relationshipProperty `json:"properties"`
}

// holdRelationships returns every CmHoldRelationship tying objects to the
// given hold.
func (h *Handler) holdRelationships(ctx context.Context, holdID string) ([]holdRelationship, error) {
	const op = "tools.holdRelationships"
	const query = `
    query getCmRelationshipObjectsForAHold($repo: String!, $where: String!) {
        repositoryObjects(
            repositoryIdentifier: $repo
            from: "CmHoldRelationship"
            where: $where
        ) {
            independentObjects {
                className
                properties(includes: ["HeldObject", "Hold", "Id"]) {
                    id
                    value
                }
            }
        }
    }`

	where := fmt.Sprintf("[%s] = Object (%s)", domain.HoldProperty, holdID)
	data, err := h.repo.Execute(ctx, gateway.Operation{
		Name:  "getCmRelationshipObjectsForAHold",
		Query: query,
		Variables: map[string]any{
			"repo":  h.repo.ObjectStore(),
			"where": where,
		},
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		RepositoryObjects struct {
			IndependentObjects []holdRelationship `json:"independentObjects"`
		} `json:"repositoryObjects"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, domain.E(domain.CodeInternal, op, "decode hold relationships", err)
	}
	return payload.RepositoryObjects.IndependentObjects, nil
}

// findHoldRelationshipID resolves the CmHoldRelationship tying one held
// object to one hold. An empty ID means no relationship exists.
func (h *Handler) findHoldRelationshipID(ctx context.Context, holdID, heldID string) (string, error) {
	const op = "tools.findHoldRelationshipID"
	const query = `
    query getCmRelationshipObject($repo: String!, $where: String!) {
        repositoryObjects(
            repositoryIdentifier: $repo
            from: "CmHoldRelationship"
            where: $where
        ) {
            independentObjects {
                className
                properties {
                    id
                    value
                }
            }
        }
    }`

	where := fmt.Sprintf("[%s] = Object (%s) and [%s] = Object (%s)",
		domain.HoldProperty, holdID, domain.HeldObjectProperty, heldID)
	data, err := h.repo.Execute(ctx, gateway.Operation{
		Name:  "getCmRelationshipObject",
		Query: query,
		Variables: map[string]any{
			"repo":  h.repo.ObjectStore(),
			"where": where,
		},
	})
	if err != nil {
		return "", err
	}

	var payload struct {
		RepositoryObjects struct {
			IndependentObjects []holdRelationship `json:"independentObjects"`
		} `json:"repositoryObjects"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", domain.E(domain.CodeInternal, op, "decode hold relationship", err)
	}
	for _, rel := range payload.RepositoryObjects.IndependentObjects {
		for _, prop := range rel.Properties {
			if prop.ID != domain.IDProperty {
				continue
			}
			var id string
			if err := json.Unmarshal(prop.Value, &id); err == nil && id != "" {
				return id, nil
			}
		}
	}
	return "", nil
}

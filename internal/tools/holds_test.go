package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csmcp/internal/domain"
	"csmcp/internal/infra/gateway"
)

func TestCreateHoldDefaultsToCmHold(t *testing.T) {
	repo := &fakeRepo{respond: respondWith("changeObject",
		`{"className": "CmHold", "properties": [{"id": "Id", "value": "{H1}"}]}`)}
	h := NewHandler(repo, &fakeSchema{}, nil)

	res, _, err := h.CreateHold(context.Background(), nil, CreateHoldInput{
		DisplayName: "Litigation 2026",
	})
	require.NoError(t, err)

	require.Len(t, repo.ops, 1)
	assert.Equal(t, "createHold", repo.ops[0].Name)
	assert.Equal(t, "CmHold", repo.ops[0].Variables["class_name"])
	assert.Equal(t, "Litigation 2026", repo.ops[0].Variables["display_name"])
	assert.Contains(t, resultText(t, res), "CmHold")
}

func TestCreateHoldRequiresDisplayName(t *testing.T) {
	h := NewHandler(&fakeRepo{}, &fakeSchema{}, nil)

	_, _, err := h.CreateHold(context.Background(), nil, CreateHoldInput{})
	require.Error(t, err)
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeInvalidArgument, code)
}

func TestPutObjectOnHoldCreatesRelationship(t *testing.T) {
	repo := &fakeRepo{respond: respondWith("changeObject",
		`{"className": "CmHoldRelationship", "properties": [{"id": "Id", "value": "{R1}"}]}`)}
	h := NewHandler(repo, &fakeSchema{}, nil)

	_, _, err := h.PutObjectOnHold(context.Background(), nil, PutObjectOnHoldInput{
		HoldID:    "{H1}",
		HeldClass: "Document",
		HeldID:    "{D1}",
	})
	require.NoError(t, err)

	require.Len(t, repo.ops, 1)
	op := repo.ops[0]
	assert.Contains(t, op.Query, `classId: "CmHoldRelationship"`)
	assert.Equal(t, "{H1}", op.Variables["hold_identifier"])
	assert.Equal(t, "Document", op.Variables["held_class_name"])
	assert.Equal(t, "{D1}", op.Variables["held_identifier"])
}

func holdResponder(relationships string) func(gateway.Operation) (json.RawMessage, error) {
	return func(op gateway.Operation) (json.RawMessage, error) {
		switch op.Name {
		case "getCmRelationshipObject", "getCmRelationshipObjectsForAHold":
			return json.RawMessage(`{"repositoryObjects": {"independentObjects": ` + relationships + `}}`), nil
		case "releaseObjectFromHold":
			return json.RawMessage(`{"changeObject": {"className": "CmHoldRelationship"}}`), nil
		}
		return nil, domain.E(domain.CodeInternal, "holdResponder", "unexpected operation "+op.Name, nil)
	}
}

func TestReleaseObjectFromHoldDeletesRelationship(t *testing.T) {
	repo := &fakeRepo{respond: holdResponder(
		`[{"properties": [{"id": "Id", "value": "{R1}"}]}]`)}
	h := NewHandler(repo, &fakeSchema{}, nil)

	res, _, err := h.ReleaseObjectFromHold(context.Background(), nil, ReleaseObjectFromHoldInput{
		HoldID: "{H1}",
		HeldID: "{D1}",
	})
	require.NoError(t, err)

	require.Len(t, repo.ops, 2)
	assert.Equal(t, "[Hold] = Object ({H1}) and [HeldObject] = Object ({D1})",
		repo.ops[0].Variables["where"])
	assert.Equal(t, "{R1}", repo.ops[1].Variables["hold_relationship_id"])
	assert.Equal(t, "CmHoldRelationship", repo.ops[1].Variables["hold_relationship_class_name"])
	assert.Contains(t, resultText(t, res), "CmHoldRelationship")
}

func TestReleaseObjectFromHoldNoRelationship(t *testing.T) {
	repo := &fakeRepo{respond: holdResponder(`[]`)}
	h := NewHandler(repo, &fakeSchema{}, nil)

	res, _, err := h.ReleaseObjectFromHold(context.Background(), nil, ReleaseObjectFromHoldInput{
		HoldID: "{H1}",
		HeldID: "{D1}",
	})
	require.NoError(t, err)

	// No relationship means nothing to delete; only the lookup runs.
	require.Len(t, repo.ops, 1)
	assert.Contains(t, resultText(t, res), "no_action_needed")
}

func TestRemoveHold(t *testing.T) {
	repo := &fakeRepo{respond: respondWith("changeObject",
		`{"className": "CmHold", "objectReference": {"identifier": "{H1}"}}`)}
	h := NewHandler(repo, &fakeSchema{}, nil)

	_, _, err := h.RemoveHold(context.Background(), nil, RemoveHoldInput{HoldID: "{H1}"})
	require.NoError(t, err)

	require.Len(t, repo.ops, 1)
	assert.Contains(t, repo.ops[0].Query, `classIdentifier: "CmHold"`)
	assert.Equal(t, "{H1}", repo.ops[0].Variables["hold_identifier"])
}

func TestListHeldObjectsForHold(t *testing.T) {
	repo := &fakeRepo{respond: holdResponder(`[
		{"properties": [
			{"id": "Id", "value": "{R1}"},
			{"id": "HeldObject", "value": {"identifier": "{D1}", "classIdentifier": "Document"}}
		]},
		{"properties": [
			{"id": "Id", "value": "{R2}"},
			{"id": "HeldObject", "value": {"identifier": "{F1}", "classIdentifier": "Folder"}}
		]}
	]`)}
	h := NewHandler(repo, &fakeSchema{}, nil)

	res, _, err := h.ListHeldObjectsForHold(context.Background(), nil, RemoveHoldInput{HoldID: "{H1}"})
	require.NoError(t, err)

	require.Len(t, repo.ops, 1)
	assert.Equal(t, "[Hold] = Object ({H1})", repo.ops[0].Variables["where"])

	var out struct {
		HeldObjects []map[string]any `json:"held_objects"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &out))
	require.Len(t, out.HeldObjects, 2)
	assert.Equal(t, "{D1}", out.HeldObjects[0]["identifier"])
	assert.Equal(t, "Folder", out.HeldObjects[1]["classIdentifier"])
}

func TestListHoldsByName(t *testing.T) {
	repo := &fakeRepo{respond: respondWith("repositoryObjects",
		`{"independentObjects": [{"className": "CmHold", "properties": [{"id": "DisplayName", "value": "Merger Review"}]}]}`)}
	h := NewHandler(repo, &fakeSchema{}, nil)

	res, _, err := h.ListHoldsByName(context.Background(), nil, ListHoldsByNameInput{
		DisplayName: "Merger",
	})
	require.NoError(t, err)

	require.Len(t, repo.ops, 1)
	assert.Equal(t, "LOWER([DisplayName]) LIKE LOWER('%Merger%')",
		repo.ops[0].Variables["where"])
	assert.Contains(t, resultText(t, res), "Merger Review")
}

package domain

import "time"

const (
	DefaultDocumentClass = "Document"
	DefaultFolderClass   = "Folder"

	// TextExtractClass names the annotation class holding machine-extracted
	// document text.
	TextExtractClass = "TxeTextExtractAnnotation"
)

// SystemRootClasses are the repository's built-in class hierarchy roots.
// Every custom class ultimately descends from one of these.
var SystemRootClasses = []string{"Document", "Folder", "Annotation", "CustomObject"}

const (
	DefaultTokenRefresh   = 1800 * time.Second
	DefaultRequestTimeout = 30 * time.Second
	DefaultPoolSize       = 100
)

// Version status values as stored by the repository.
const (
	VersionStatusReleased    = 1
	VersionStatusInProcess   = 2
	VersionStatusReservation = 3
	VersionStatusSuperseded  = 4
)

const (
	InitialMajorVersion = 0
	InitialMinorVersion = 1
)

// Property data types reported by class metadata.
const (
	DataTypeString   = "STRING"
	DataTypeInteger  = "INTEGER"
	DataTypeLong     = "LONG"
	DataTypeFloat    = "FLOAT"
	DataTypeDouble   = "DOUBLE"
	DataTypeBoolean  = "BOOLEAN"
	DataTypeDateTime = "DATETIME"
	DataTypeDate     = "DATE"
	DataTypeTime     = "TIME"
	DataTypeObject   = "OBJECT"
	DataTypeBinary   = "BINARY"
)

const CardinalityList = "LIST"

// Legal hold classes. A CmHoldRelationship object ties one CmHold to one
// held object through its Hold and HeldObject properties.
const (
	CmHoldClass             = "CmHold"
	CmHoldRelationshipClass = "CmHoldRelationship"
	HoldProperty            = "Hold"
	HeldObjectProperty      = "HeldObject"
	IDProperty              = "Id"
)

// GenaiVectorQueryClass is the persistable class whose creation runs a
// vector query over the repository's GenAI index.
const GenaiVectorQueryClass = "GenaiVectorQuery"

const (
	DefaultMaxChunks      = 100
	DefaultRelevanceScore = 1.55
)

// XSRFHeader travels both as a request header and as a cookie on every
// call to the content-services API.
const XSRFHeader = "ECM-CS-XSRF-Token"

// Package mmodel holds the JSON-serializable wire representations of
// Grace's entities, mirroring the teacher's mmodel package: one
// response struct per entity plus small shared enums.
package mmodel

import "time"

// Visibility is shared by Organization and Repository.
type Visibility string

const (
	VisibilityPublic  Visibility = "PUBLIC"
	VisibilityPrivate Visibility = "PRIVATE"
)

// OwnerType distinguishes a personal owner from an organization-capable one.
type OwnerType string

const (
	OwnerTypeUser OwnerType = "USER"
	OwnerTypeOrg  OwnerType = "ORGANIZATION"
)

// RepositoryStatus mirrors the repository's operational status field.
type RepositoryStatus string

const (
	RepositoryStatusActive   RepositoryStatus = "ACTIVE"
	RepositoryStatusArchived RepositoryStatus = "ARCHIVED"
)

// ReferenceType is the closed set of reference variants, fixed at
// creation per invariant 4.
type ReferenceType string

const (
	ReferenceTypeAssign     ReferenceType = "ASSIGN"
	ReferenceTypePromotion  ReferenceType = "PROMOTION"
	ReferenceTypeCommit     ReferenceType = "COMMIT"
	ReferenceTypeCheckpoint ReferenceType = "CHECKPOINT"
	ReferenceTypeSave       ReferenceType = "SAVE"
	ReferenceTypeTag        ReferenceType = "TAG"
	ReferenceTypeExternal   ReferenceType = "EXTERNAL"
	ReferenceTypeRebase     ReferenceType = "REBASE"
)

// Owner is the response payload for an Owner entity.
type Owner struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Type             OwnerType  `json:"type"`
	Description      string     `json:"description"`
	SearchVisible    bool       `json:"searchVisible"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	DeletedAt        *time.Time `json:"deletedAt,omitempty"`
	DeleteReason     string     `json:"deleteReason,omitempty"`
}

// Organization is the response payload for an Organization entity.
type Organization struct {
	ID         string     `json:"id"`
	OwnerID    string     `json:"ownerId"`
	Name       string     `json:"name"`
	Type       OwnerType  `json:"type"`
	Visibility Visibility `json:"visibility"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	DeletedAt  *time.Time `json:"deletedAt,omitempty"`
}

// RetentionPolicy bundles the repository-level retention knobs that
// gate Save/Checkpoint/LogicalDelete reminder scheduling.
type RetentionPolicy struct {
	SaveDays                int `json:"saveDays"`
	CheckpointDays          int `json:"checkpointDays"`
	DiffCacheDays           int `json:"diffCacheDays"`
	DirectoryVersionCacheDays int `json:"directoryVersionCacheDays"`
	LogicalDeleteDays       int `json:"logicalDeleteDays"`
}

// Repository is the response payload for a Repository entity.
type Repository struct {
	ID                      string           `json:"id"`
	OwnerID                 string           `json:"ownerId"`
	OrganizationID          string           `json:"organizationId"`
	Name                    string           `json:"name"`
	Visibility              Visibility       `json:"visibility"`
	Status                  RepositoryStatus `json:"status"`
	DefaultServerAPIVersion string           `json:"defaultServerApiVersion"`
	RecordSaves             bool             `json:"recordSaves"`
	Retention               RetentionPolicy  `json:"retention"`
	CreatedAt               time.Time        `json:"createdAt"`
	UpdatedAt               time.Time        `json:"updatedAt"`
	DeletedAt               *time.Time       `json:"deletedAt,omitempty"`
}

// ReferenceTypeFlags are the per-branch enable switches gating which
// reference-producing commands succeed.
type ReferenceTypeFlags struct {
	Assign     bool `json:"assign"`
	Promotion  bool `json:"promotion"`
	Commit     bool `json:"commit"`
	Checkpoint bool `json:"checkpoint"`
	Save       bool `json:"save"`
	Tag        bool `json:"tag"`
	External   bool `json:"external"`
	AutoRebase bool `json:"autoRebase"`
}

// Branch is the response payload for a Branch entity.
type Branch struct {
	ID                string             `json:"id"`
	RepositoryID      string             `json:"repositoryId"`
	ParentBranchID    *string            `json:"parentBranchId,omitempty"`
	Name              string             `json:"name"`
	BasedOn           string             `json:"basedOn,omitempty"`
	LatestPromotion   string             `json:"latestPromotion,omitempty"`
	LatestCommit      string             `json:"latestCommit,omitempty"`
	LatestCheckpoint  string             `json:"latestCheckpoint,omitempty"`
	LatestSave        string             `json:"latestSave,omitempty"`
	Enabled           ReferenceTypeFlags `json:"enabled"`
	CreatedAt         time.Time          `json:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt"`
	DeletedAt         *time.Time         `json:"deletedAt,omitempty"`
}

// Reference is the response payload for a Reference entity. Apart from
// (un)deletion it is immutable once created.
type Reference struct {
	ID                 string        `json:"id"`
	RepositoryID       string        `json:"repositoryId"`
	BranchID           string        `json:"branchId"`
	DirectoryVersionID string        `json:"directoryVersionId"`
	Sha256             string        `json:"sha256"`
	Type               ReferenceType `json:"type"`
	Text               string        `json:"text"`
	CreatedAt          time.Time     `json:"createdAt"`
	DeletedAt          *time.Time    `json:"deletedAt,omitempty"`
	DeleteReason       string        `json:"deleteReason,omitempty"`
}

// FileEntry is one file referenced by a DirectoryVersion.
type FileEntry struct {
	RelativePath string `json:"relativePath"`
	Sha256       string `json:"sha256"`
	Size         int64  `json:"size"`
}

// DirectoryVersion is the response payload for a DirectoryVersion
// entity: a content-addressed directory snapshot.
type DirectoryVersion struct {
	ID                string    `json:"id"`
	RepositoryID      string    `json:"repositoryId"`
	Sha256            string    `json:"sha256"`
	RelativePath      string    `json:"relativePath"`
	Files             []FileEntry `json:"files"`
	AggregateSize     int64     `json:"aggregateSize"`
	ChildDirectoryIDs []string  `json:"childDirectoryIds"`
	CreatedAt         time.Time `json:"createdAt"`
}

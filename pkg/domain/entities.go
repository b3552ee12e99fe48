// Package domain defines the catalog entities, value types, error taxonomy and
// collaborator contracts shared by the query compiler, the ACL engine and the
// entity adaptors.
package domain

// EntityKind identifies the type of record stored in the catalog.
type EntityKind string

// Supported entity kinds. Each kind is persisted in its own collection.
const (
	KindCohort           EntityKind = "cohort"
	KindIndividual       EntityKind = "individual"
	KindClinicalAnalysis EntityKind = "clinical_analysis"
	KindSample           EntityKind = "sample"
	KindFamily           EntityKind = "family"
)

// Base carries the fields every catalog entity shares. ID and StudyID are
// assigned once at creation and never change.
type Base struct {
	ID             int64             `json:"id"`
	StudyID        int64             `json:"studyId"`
	Name           string            `json:"name"`
	CreationDate   string            `json:"creationDate,omitempty"`
	Release        int               `json:"release,omitempty"`
	Status         Status            `json:"status"`
	Acls           []PermissionEntry `json:"acls"`
	AnnotationSets []AnnotationSet   `json:"annotationSets"`
	Attributes     map[string]any    `json:"attributes,omitempty"`
}

// Entity is implemented by every catalog record through the embedded Base.
type Entity interface {
	Common() *Base
}

// Common exposes the shared fields for generic code.
func (b *Base) Common() *Base { return b }

// CohortType enumerates the supported cohort designs.
type CohortType string

// Cohort designs.
const (
	CohortCaseControl CohortType = "CASE_CONTROL"
	CohortCaseSet     CohortType = "CASE_SET"
	CohortControlSet  CohortType = "CONTROL_SET"
	CohortPaired      CohortType = "PAIRED"
	CohortPairedTumor CohortType = "PAIRED_TUMOR"
	CohortAggregate   CohortType = "AGGREGATE"
	CohortTimeSeries  CohortType = "TIME_SERIES"
	CohortFamily      CohortType = "FAMILY"
	CohortTrio        CohortType = "TRIO"
	CohortCollection  CohortType = "COLLECTION"
)

// CohortTypes lists every valid cohort type.
var CohortTypes = []string{
	string(CohortCaseControl), string(CohortCaseSet), string(CohortControlSet),
	string(CohortPaired), string(CohortPairedTumor), string(CohortAggregate),
	string(CohortTimeSeries), string(CohortFamily), string(CohortTrio), string(CohortCollection),
}

// Cohort groups samples of a study.
type Cohort struct {
	Base
	Type        CohortType     `json:"type"`
	Description string         `json:"description,omitempty"`
	Samples     []int64        `json:"samples"`
	Stats       map[string]any `json:"stats,omitempty"`
}

// Sex values recorded for individuals.
var Sexes = []string{"MALE", "FEMALE", "UNKNOWN", "UNDETERMINED"}

// KaryotypicSexes lists the karyotypic sex values.
var KaryotypicSexes = []string{"UNKNOWN", "XX", "XY", "XO", "XXY", "XXX", "XXYY", "XXXY", "XYY", "OTHER"}

// LifeStatuses lists the individual life statuses.
var LifeStatuses = []string{"ALIVE", "ABORTED", "DECEASED", "UNBORN", "STILLBORN", "MISCARRIAGE", "UNKNOWN"}

// AffectationStatuses lists the individual affectation statuses.
var AffectationStatuses = []string{"CONTROL", "AFFECTED", "UNAFFECTED", "UNKNOWN"}

// OntologyTerm references a phenotype in an external ontology.
type OntologyTerm struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Source string `json:"source,omitempty"`
}

// Individual is a person (or organism) participating in a study.
type Individual struct {
	Base
	Sex                   string         `json:"sex,omitempty"`
	KaryotypicSex         string         `json:"karyotypicSex,omitempty"`
	Ethnicity             string         `json:"ethnicity,omitempty"`
	Population            string         `json:"population,omitempty"`
	LifeStatus            string         `json:"lifeStatus,omitempty"`
	AffectationStatus     string         `json:"affectationStatus,omitempty"`
	DateOfBirth           string         `json:"dateOfBirth,omitempty"`
	FatherID              int64          `json:"fatherId,omitempty"`
	MotherID              int64          `json:"motherId,omitempty"`
	Samples               []int64        `json:"samples"`
	Phenotypes            []OntologyTerm `json:"phenotypes,omitempty"`
	ParentalConsanguinity bool           `json:"parentalConsanguinity"`
}

// ClinicalTypes lists the clinical analysis types.
var ClinicalTypes = []string{"SINGLE", "DUO", "TRIO", "FAMILY", "AUTO", "MULTISAMPLE"}

// ClinicalPriorities lists the clinical analysis priorities.
var ClinicalPriorities = []string{"URGENT", "HIGH", "MEDIUM", "LOW"}

// ClinicalAnalysis tracks the interpretation of a proband's samples.
type ClinicalAnalysis struct {
	Base
	Type        string  `json:"type"`
	Priority    string  `json:"priority,omitempty"`
	Description string  `json:"description,omitempty"`
	DueDate     string  `json:"dueDate,omitempty"`
	ProbandID   int64   `json:"probandId,omitempty"`
	FamilyID    int64   `json:"familyId,omitempty"`
	Samples     []int64 `json:"samples"`
}

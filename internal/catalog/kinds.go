package catalog

import (
	"slices"
	"strings"

	"github.com/bart-jansen/opencga/internal/query"
	"github.com/bart-jansen/opencga/pkg/domain"
)

// EntityPermissions is the permission vocabulary shared by the built-in kinds.
var EntityPermissions = []string{
	domain.PermissionView,
	domain.PermissionUpdate,
	domain.PermissionDelete,
	domain.PermissionShare,
	domain.PermissionViewAnnotations,
	domain.PermissionWriteAnnotations,
	domain.PermissionDeleteAnnotations,
}

func commonFields() []Field {
	return []Field{
		{Key: "name", Path: query.PathName, Type: FieldText},
		{Key: "attributes", Path: query.PathAttributes, Type: FieldMap},
	}
}

func oneOf(field, value string, allowed []string) error {
	if value == "" || slices.Contains(allowed, value) {
		return nil
	}
	return domain.InvalidArgumentError{Field: field, Value: value, Reason: "expected one of " + strings.Join(allowed, ",")}
}

// Cohorts describes the cohort kind.
func Cohorts() Kind[domain.Cohort] {
	return Kind[domain.Cohort]{
		Name: domain.KindCohort,
		Params: query.NewParamTable(query.CommonParams()...).With(
			query.Param{Key: "type", Path: "type", Kind: query.Enum, Enum: domain.CohortTypes},
			query.Param{Key: "description", Path: "description", Kind: query.Text},
			query.Param{Key: "samples", Path: "samples", Kind: query.IntegerList},
			query.Param{Key: "stats", Path: "stats", Kind: query.Decimal, Strategy: query.AttributeMap},
		),
		Permissions: EntityPermissions,
		Fields: append(commonFields(),
			Field{Key: "type", Path: "type", Type: FieldEnum, Enum: domain.CohortTypes},
			Field{Key: "description", Path: "description", Type: FieldText},
			Field{Key: "samples", Path: "samples", Type: FieldIDList, Ref: domain.KindSample},
			Field{Key: "stats", Path: "stats", Type: FieldMap},
		),
		Base: func(c *domain.Cohort) *domain.Base { return &c.Base },
		References: func(c *domain.Cohort) []Reference {
			return []Reference{{Kind: domain.KindSample, IDs: c.Samples}}
		},
		Validate: func(c *domain.Cohort) error {
			if c.Type == "" {
				c.Type = domain.CohortCollection
			}
			if c.Samples == nil {
				c.Samples = []int64{}
			}
			return oneOf("type", string(c.Type), domain.CohortTypes)
		},
	}
}

// Individuals describes the individual kind.
func Individuals() Kind[domain.Individual] {
	return Kind[domain.Individual]{
		Name: domain.KindIndividual,
		Params: query.NewParamTable(query.CommonParams()...).With(
			query.Param{Key: "sex", Path: "sex", Kind: query.Enum, Enum: domain.Sexes},
			query.Param{Key: "karyotypicSex", Path: "karyotypicSex", Kind: query.Enum, Enum: domain.KaryotypicSexes},
			query.Param{Key: "ethnicity", Path: "ethnicity", Kind: query.Text},
			query.Param{Key: "population", Path: "population", Kind: query.Text},
			query.Param{Key: "lifeStatus", Path: "lifeStatus", Kind: query.Enum, Enum: domain.LifeStatuses},
			query.Param{Key: "affectationStatus", Path: "affectationStatus", Kind: query.Enum, Enum: domain.AffectationStatuses},
			query.Param{Key: "dateOfBirth", Path: "dateOfBirth", Kind: query.Text},
			query.Param{Key: "fatherId", Path: "fatherId", Kind: query.Integer},
			query.Param{Key: "motherId", Path: "motherId", Kind: query.Integer},
			query.Param{Key: "samples", Path: "samples", Kind: query.IntegerList},
			query.Param{Key: "phenotypes", Path: "phenotypes.id", Kind: query.TextList},
			query.Param{Key: "parentalConsanguinity", Path: "parentalConsanguinity", Kind: query.Boolean},
		),
		Permissions: EntityPermissions,
		Fields: append(commonFields(),
			Field{Key: "sex", Path: "sex", Type: FieldEnum, Enum: domain.Sexes},
			Field{Key: "karyotypicSex", Path: "karyotypicSex", Type: FieldEnum, Enum: domain.KaryotypicSexes},
			Field{Key: "ethnicity", Path: "ethnicity", Type: FieldText},
			Field{Key: "population", Path: "population", Type: FieldText},
			Field{Key: "lifeStatus", Path: "lifeStatus", Type: FieldEnum, Enum: domain.LifeStatuses},
			Field{Key: "affectationStatus", Path: "affectationStatus", Type: FieldEnum, Enum: domain.AffectationStatuses},
			Field{Key: "dateOfBirth", Path: "dateOfBirth", Type: FieldText},
			Field{Key: "fatherId", Path: "fatherId", Type: FieldID, Ref: domain.KindIndividual},
			Field{Key: "motherId", Path: "motherId", Type: FieldID, Ref: domain.KindIndividual},
			Field{Key: "samples", Path: "samples", Type: FieldIDList, Ref: domain.KindSample},
			Field{Key: "phenotypes", Path: "phenotypes", Type: FieldObject},
			Field{Key: "parentalConsanguinity", Path: "parentalConsanguinity", Type: FieldBoolean},
		),
		Base: func(i *domain.Individual) *domain.Base { return &i.Base },
		References: func(i *domain.Individual) []Reference {
			var parents []int64
			for _, p := range []int64{i.FatherID, i.MotherID} {
				if p > 0 {
					parents = append(parents, p)
				}
			}
			return []Reference{
				{Kind: domain.KindSample, IDs: i.Samples},
				{Kind: domain.KindIndividual, IDs: parents},
			}
		},
		Validate: func(i *domain.Individual) error {
			if i.Samples == nil {
				i.Samples = []int64{}
			}
			for _, check := range []struct {
				field, value string
				allowed      []string
			}{
				{"sex", i.Sex, domain.Sexes},
				{"karyotypicSex", i.KaryotypicSex, domain.KaryotypicSexes},
				{"lifeStatus", i.LifeStatus, domain.LifeStatuses},
				{"affectationStatus", i.AffectationStatus, domain.AffectationStatuses},
			} {
				if err := oneOf(check.field, check.value, check.allowed); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// ClinicalAnalyses describes the clinical analysis kind.
func ClinicalAnalyses() Kind[domain.ClinicalAnalysis] {
	return Kind[domain.ClinicalAnalysis]{
		Name: domain.KindClinicalAnalysis,
		Params: query.NewParamTable(query.CommonParams()...).With(
			query.Param{Key: "type", Path: "type", Kind: query.Enum, Enum: domain.ClinicalTypes},
			query.Param{Key: "priority", Path: "priority", Kind: query.Enum, Enum: domain.ClinicalPriorities},
			query.Param{Key: "description", Path: "description", Kind: query.Text},
			query.Param{Key: "dueDate", Path: "dueDate", Kind: query.Date},
			query.Param{Key: "proband", Path: "probandId", Kind: query.Integer},
			query.Param{Key: "family", Path: "familyId", Kind: query.Integer},
			query.Param{Key: "samples", Path: "samples", Kind: query.IntegerList},
		),
		Permissions: EntityPermissions,
		Fields: append(commonFields(),
			Field{Key: "type", Path: "type", Type: FieldEnum, Enum: domain.ClinicalTypes},
			Field{Key: "priority", Path: "priority", Type: FieldEnum, Enum: domain.ClinicalPriorities},
			Field{Key: "description", Path: "description", Type: FieldText},
			Field{Key: "dueDate", Path: "dueDate", Type: FieldText},
			Field{Key: "proband", Path: "probandId", Type: FieldID, Ref: domain.KindIndividual},
			Field{Key: "family", Path: "familyId", Type: FieldID, Ref: domain.KindFamily},
			Field{Key: "samples", Path: "samples", Type: FieldIDList, Ref: domain.KindSample},
		),
		Base: func(c *domain.ClinicalAnalysis) *domain.Base { return &c.Base },
		References: func(c *domain.ClinicalAnalysis) []Reference {
			refs := []Reference{{Kind: domain.KindSample, IDs: c.Samples}}
			if c.ProbandID > 0 {
				refs = append(refs, Reference{Kind: domain.KindIndividual, IDs: []int64{c.ProbandID}})
			}
			if c.FamilyID > 0 {
				refs = append(refs, Reference{Kind: domain.KindFamily, IDs: []int64{c.FamilyID}})
			}
			return refs
		},
		Validate: func(c *domain.ClinicalAnalysis) error {
			if c.Samples == nil {
				c.Samples = []int64{}
			}
			if c.Type == "" {
				return domain.InvalidArgumentError{Field: "type", Value: c.Type, Reason: "clinical analysis type is required"}
			}
			if err := oneOf("type", c.Type, domain.ClinicalTypes); err != nil {
				return err
			}
			return oneOf("priority", c.Priority, domain.ClinicalPriorities)
		},
	}
}

package catalog

import (
	"github.com/bart-jansen/opencga/internal/docstore"
	"github.com/bart-jansen/opencga/internal/query"
)

// Public field names that are stored under internal paths.
var renames = map[string]string{
	"id":      query.PathID,
	"studyId": query.PathStudy,
}

func toDocument(v any) (docstore.Document, error) {
	doc, err := docstore.Encode(v)
	if err != nil {
		return nil, err
	}
	for public, internal := range renames {
		if val, ok := doc[public]; ok {
			delete(doc, public)
			doc[internal] = val
		}
	}
	return doc, nil
}

func fromDocument[T any](doc docstore.Document) (T, error) {
	var out T
	doc = doc.Clone()
	for public, internal := range renames {
		if val, ok := doc[internal]; ok {
			delete(doc, internal)
			doc[public] = val
		}
	}
	if err := docstore.Decode(doc, &out); err != nil {
		return out, err
	}
	return out, nil
}

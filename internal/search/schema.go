package search

import "strings"

const vectorDimensions = 1536

// IndexName derives the per-course index name from the origin host: every
// character outside [a-z0-9] is replaced with a dash, so
// "courses.example.org" + "abc123" -> "courses-example-org-abc123".
func IndexName(originHost, courseID string) string {
	return escapeHost(originHost) + "-" + courseID
}

func escapeHost(host string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(host) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('-')
		}
	}
	return b.String()
}

type indexDefinition struct {
	Name         string          `json:"name"`
	Fields       []indexField    `json:"fields"`
	VectorSearch *vectorSearch   `json:"vectorSearch,omitempty"`
	Semantic     *semanticSearch `json:"semantic,omitempty"`
}

type indexField struct {
	Name                string `json:"name"`
	Type                string `json:"type"`
	Key                 bool   `json:"key,omitempty"`
	Searchable          bool   `json:"searchable"`
	Filterable          bool   `json:"filterable"`
	Retrievable         bool   `json:"retrievable"`
	Dimensions          int    `json:"dimensions,omitempty"`
	VectorSearchProfile string `json:"vectorSearchProfile,omitempty"`
}

type vectorSearch struct {
	Algorithms  []vectorAlgorithm  `json:"algorithms"`
	Profiles    []vectorProfile    `json:"profiles"`
	Vectorizers []vectorVectorizer `json:"vectorizers"`
}

type vectorAlgorithm struct {
	Name           string         `json:"name"`
	Kind           string         `json:"kind"`
	HNSWParameters hnswParameters `json:"hnswParameters"`
}

type hnswParameters struct {
	M              int    `json:"m"`
	Metric         string `json:"metric"`
	EfConstruction int    `json:"efConstruction"`
	EfSearch       int    `json:"efSearch"`
}

type vectorProfile struct {
	Name       string `json:"name"`
	Algorithm  string `json:"algorithm"`
	Vectorizer string `json:"vectorizer"`
}

type vectorVectorizer struct {
	Name                  string                `json:"name"`
	Kind                  string                `json:"kind"`
	AzureOpenAIParameters azureOpenAIParameters `json:"azureOpenAIParameters"`
}

type azureOpenAIParameters struct {
	ResourceURI  string `json:"resourceUri"`
	DeploymentID string `json:"deploymentId"`
	ModelName    string `json:"modelName"`
	APIKey       string `json:"apiKey"`
}

type semanticSearch struct {
	Configurations []semanticConfiguration `json:"configurations"`
}

type semanticConfiguration struct {
	Name              string            `json:"name"`
	PrioritizedFields prioritizedFields `json:"prioritizedFields"`
}

type prioritizedFields struct {
	TitleField               semanticField   `json:"titleField"`
	PrioritizedContentFields []semanticField `json:"prioritizedContentFields"`
}

type semanticField struct {
	FieldName string `json:"fieldName"`
}

// canonicalDefinition is the one schema every course index is created with.
func canonicalDefinition(name string, emb EmbeddingConfig) indexDefinition {
	algorithm := name + "-hnsw"
	profile := name + "-azureOpenAi-text-profile"
	vectorizer := name + "-azureOpenAi-text-vectorizer"

	return indexDefinition{
		Name: name,
		Fields: []indexField{
			{Name: "chunk_id", Type: "Edm.String", Key: true, Filterable: true, Retrievable: true},
			{Name: "parent_id", Type: "Edm.String", Filterable: true, Retrievable: true},
			{Name: "chunk", Type: "Edm.String", Searchable: true, Retrievable: true},
			{Name: "title", Type: "Edm.String", Searchable: true, Filterable: true, Retrievable: true},
			{Name: "url", Type: "Edm.String", Filterable: true, Retrievable: true},
			{
				Name:                "text_vector",
				Type:                "Collection(Edm.Single)",
				Searchable:          true,
				Dimensions:          vectorDimensions,
				VectorSearchProfile: profile,
			},
		},
		VectorSearch: &vectorSearch{
			Algorithms: []vectorAlgorithm{{
				Name: algorithm,
				Kind: "hnsw",
				HNSWParameters: hnswParameters{
					M:              4,
					Metric:         "cosine",
					EfConstruction: 400,
					EfSearch:       500,
				},
			}},
			Profiles: []vectorProfile{{
				Name:       profile,
				Algorithm:  algorithm,
				Vectorizer: vectorizer,
			}},
			Vectorizers: []vectorVectorizer{{
				Name: vectorizer,
				Kind: "azureOpenAI",
				AzureOpenAIParameters: azureOpenAIParameters{
					ResourceURI:  emb.ResourceURI,
					DeploymentID: emb.Deployment,
					ModelName:    emb.Model,
					APIKey:       emb.APIKey,
				},
			}},
		},
		Semantic: &semanticSearch{
			Configurations: []semanticConfiguration{{
				Name: name + "-semantic-configuration",
				PrioritizedFields: prioritizedFields{
					TitleField:               semanticField{FieldName: "title"},
					PrioritizedContentFields: []semanticField{{FieldName: "chunk"}},
				},
			}},
		},
	}
}

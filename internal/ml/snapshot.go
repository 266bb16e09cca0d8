package ml

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"github.com/temcen/seasonrec/pkg/models"
)

// Blob names making up a persisted snapshot.
const (
	BehavioralBlob = "behavioral.gob"
	ContentBlob    = "content.gob"
	ParamsBlob     = "hybrid_params.yaml"
)

var SnapshotBlobs = []string{BehavioralBlob, ContentBlob, ParamsBlob}

// Snapshot is an immutable trained model set. Readers hold a pointer to it
// for the duration of a request; retraining swaps in a new one.
type Snapshot struct {
	Behavioral *BehavioralModel
	Content    *ContentModel
	Params     models.HybridParameters
	TrainedAt  time.Time
	Version    string
}

type behavioralState struct {
	Rank       int
	UserIDs    []uuid.UUID
	ProductIDs []uuid.UUID
	Indptr     []int
	Indices    []int
	Data       []float64
	Components []byte
}

type contentState struct {
	ProductIDs []uuid.UUID
	Vocabulary []string
	IDF        []float64
	Features   []byte
}

type paramsDocument struct {
	Version   string                  `yaml:"version"`
	TrainedAt time.Time               `yaml:"trained_at"`
	Params    models.HybridParameters `yaml:"parameters"`
}

// Encode serializes the snapshot into its named blobs.
func (s *Snapshot) Encode() (map[string][]byte, error) {
	components, err := s.Behavioral.components.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal behavioral components: %w", err)
	}
	inter := s.Behavioral.interactions
	behavioral, err := gobBytes(behavioralState{
		Rank:       s.Behavioral.rank,
		UserIDs:    s.Behavioral.userIDs,
		ProductIDs: s.Behavioral.productIDs,
		Indptr:     inter.indptr,
		Indices:    inter.indices,
		Data:       inter.data,
		Components: components,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode behavioral model: %w", err)
	}

	features, err := s.Content.features.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal content features: %w", err)
	}
	content, err := gobBytes(contentState{
		ProductIDs: s.Content.productIDs,
		Vocabulary: s.Content.vectorizer.Vocabulary,
		IDF:        s.Content.vectorizer.IDF,
		Features:   features,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode content model: %w", err)
	}

	params, err := yaml.Marshal(paramsDocument{Version: s.Version, TrainedAt: s.TrainedAt, Params: s.Params})
	if err != nil {
		return nil, fmt.Errorf("failed to encode hybrid parameters: %w", err)
	}

	return map[string][]byte{
		BehavioralBlob: behavioral,
		ContentBlob:    content,
		ParamsBlob:     params,
	}, nil
}

// DecodeSnapshot rebuilds a snapshot from its blobs, recomputing the
// similarity matrices.
func DecodeSnapshot(blobs map[string][]byte) (*Snapshot, error) {
	for _, name := range SnapshotBlobs {
		if len(blobs[name]) == 0 {
			return nil, fmt.Errorf("snapshot blob %s is missing", name)
		}
	}

	var bs behavioralState
	if err := gob.NewDecoder(bytes.NewReader(blobs[BehavioralBlob])).Decode(&bs); err != nil {
		return nil, fmt.Errorf("failed to decode behavioral model: %w", err)
	}
	var components mat.Dense
	if err := components.UnmarshalBinary(bs.Components); err != nil {
		return nil, fmt.Errorf("failed to unmarshal behavioral components: %w", err)
	}
	if r, c := components.Dims(); r != bs.Rank || c != len(bs.ProductIDs) {
		return nil, fmt.Errorf("behavioral components have shape %dx%d, want %dx%d", r, c, bs.Rank, len(bs.ProductIDs))
	}
	table := &sparseMatrix{
		rows:    len(bs.UserIDs),
		cols:    len(bs.ProductIDs),
		indptr:  bs.Indptr,
		indices: bs.Indices,
		data:    bs.Data,
	}
	if err := table.validate(); err != nil {
		return nil, fmt.Errorf("behavioral interaction table is inconsistent: %w", err)
	}
	behavioral := &BehavioralModel{
		rank:         bs.Rank,
		userIDs:      bs.UserIDs,
		productIDs:   bs.ProductIDs,
		interactions: table,
		components:   &components,
	}
	behavioral.build()

	var cs contentState
	if err := gob.NewDecoder(bytes.NewReader(blobs[ContentBlob])).Decode(&cs); err != nil {
		return nil, fmt.Errorf("failed to decode content model: %w", err)
	}
	var features mat.Dense
	if err := features.UnmarshalBinary(cs.Features); err != nil {
		return nil, fmt.Errorf("failed to unmarshal content features: %w", err)
	}
	if r, _ := features.Dims(); r != len(cs.ProductIDs) || len(cs.Vocabulary) != len(cs.IDF) {
		return nil, fmt.Errorf("content model is inconsistent")
	}
	vectorizer := &tfidfVectorizer{Vocabulary: cs.Vocabulary, IDF: cs.IDF}
	vectorizer.buildIndex()
	content := &ContentModel{
		productIDs: cs.ProductIDs,
		vectorizer: vectorizer,
		features:   &features,
	}
	content.build()

	var doc paramsDocument
	if err := yaml.Unmarshal(blobs[ParamsBlob], &doc); err != nil {
		return nil, fmt.Errorf("failed to decode hybrid parameters: %w", err)
	}

	return &Snapshot{
		Behavioral: behavioral,
		Content:    content,
		Params:     doc.Params,
		TrainedAt:  doc.TrainedAt,
		Version:    doc.Version,
	}, nil
}

func gobBytes(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

package extractor

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	"github.com/ylohnitram/danovyhlidac-sub001/pkg/apperrors"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/models"
)

const (
	elementContract  = "zaznam"
	elementAmendment = "dodatek"
)

// Extractor turns a staged dump into a stream of raw records.
type Extractor interface {
	Extract(path string) (*Stream, error)
}

type xmlExtractor struct {
	policy ShapePolicy
	logger *zap.Logger
}

var _ Extractor = (*xmlExtractor)(nil)

// New creates an Extractor probing party shapes in policy order.
func New(policy ShapePolicy, logger *zap.Logger) Extractor {
	if len(policy) == 0 {
		policy = DefaultShapePolicy()
	}
	return &xmlExtractor{
		policy: policy,
		logger: logger.Named("extractor"),
	}
}

// Extract opens the dump and positions the stream inside its root element.
// It fails when the file cannot be opened or holds no XML root; records are
// decoded lazily by Stream.Next.
func (e *xmlExtractor) Extract(path string) (*Stream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dump: %w", err)
	}

	s, err := newStream(f, e.policy, e.logger)
	if err != nil {
		f.Close()
		return nil, err
	}

	e.logger.Info("Extracting dump",
		zap.String("path", path),
		zap.String("root", s.root))
	return s, nil
}

// Stream yields records in document order, one top-level element at a time.
// It is finite and cannot be rewound; call Extract again to re-read a dump.
type Stream struct {
	r      io.ReadCloser
	dec    *xml.Decoder
	policy ShapePolicy
	logger *zap.Logger
	root   string
	index  int
	done   bool
}

// NewStream reads records from r. The stream takes ownership of r.
func NewStream(r io.ReadCloser, policy ShapePolicy, logger *zap.Logger) (*Stream, error) {
	if len(policy) == 0 {
		policy = DefaultShapePolicy()
	}
	return newStream(r, policy, logger.Named("extractor"))
}

func newStream(r io.ReadCloser, policy ShapePolicy, logger *zap.Logger) (*Stream, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel

	s := &Stream{r: r, dec: dec, policy: policy, logger: logger}
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, apperrors.New(apperrors.KindParse, "read dump", "document has no root element")
			}
			return nil, apperrors.Wrap(err, apperrors.KindParse, "read dump")
		}
		if se, ok := tok.(xml.StartElement); ok {
			s.root = se.Name.Local
			return s, nil
		}
	}
}

// Next returns the next record, or io.EOF when the document is exhausted.
// A record that cannot be decoded is returned with ParseErr set. A syntax
// error ends the stream after being reported once as such a record.
func (s *Stream) Next() (models.RawRecord, error) {
	for !s.done {
		tok, err := s.dec.Token()
		if err != nil {
			s.done = true
			if errors.Is(err, io.EOF) {
				break
			}
			s.index++
			return models.RawRecord{
				Index:    s.index,
				Kind:     models.RecordKindContract,
				ParseErr: apperrors.Wrap(err, apperrors.KindParse, "read dump"),
			}, nil
		}

		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch se.Name.Local {
		case elementContract:
			s.index++
			var rec xmlRecord
			if err := s.dec.DecodeElement(&rec, &se); err != nil {
				s.done = true
				return s.parseFailure(models.RecordKindContract, err), nil
			}
			return s.contractRecord(&rec), nil

		case elementAmendment:
			s.index++
			var am xmlAmendment
			if err := s.dec.DecodeElement(&am, &se); err != nil {
				s.done = true
				return s.parseFailure(models.RecordKindAmendment, err), nil
			}
			return s.amendmentRecord(&am), nil

		default:
			// Unknown top-level elements (headers, export metadata) are skipped whole.
			if err := s.dec.Skip(); err != nil {
				s.done = true
				s.index++
				return s.parseFailure(models.RecordKindContract, err), nil
			}
		}
	}
	return models.RawRecord{}, io.EOF
}

// Index is the number of records returned so far.
func (s *Stream) Index() int {
	return s.index
}

// Close releases the underlying file.
func (s *Stream) Close() error {
	s.done = true
	return s.r.Close()
}

func (s *Stream) parseFailure(kind models.RecordKind, err error) models.RawRecord {
	s.logger.Warn("Failed to decode record",
		zap.Int("index", s.index),
		zap.Error(err))
	return models.RawRecord{
		Index:    s.index,
		Kind:     kind,
		ParseErr: apperrors.Wrap(err, apperrors.KindParse, fmt.Sprintf("decode record %d", s.index)),
	}
}

func (s *Stream) contractRecord(rec *xmlRecord) models.RawRecord {
	raw := models.RawRecord{
		Index:      s.index,
		Kind:       models.RecordKindContract,
		ExternalID: clean(rec.Identifier.ContractID),
	}

	body := rec.Body
	if body == nil {
		raw.ParseErr = apperrors.New(apperrors.KindParse, fmt.Sprintf("decode record %d", s.index), "record has no <smlouva> body")
		return raw
	}

	raw.Title = body.Title
	raw.Amount = body.AmountNoVAT
	if clean(raw.Amount) == "" {
		raw.Amount = body.AmountWithVAT
	}
	raw.Date = body.Date
	raw.Category = clean(body.Category)
	raw.ProcurementType = clean(body.ProcurementType)
	if body.Coordinates != nil {
		raw.Latitude = clean(body.Coordinates.Lat)
		raw.Longitude = clean(body.Coordinates.Lon)
	}

	var supplier, authority Party
	if shape, ok := s.policy.detect(body); ok {
		raw.Shape = string(shape.Name())
		supplier, authority = parties(shape)
	}
	if authority.empty() && body.Publisher != nil {
		authority = body.Publisher.party()
	}

	raw.SupplierName = supplier.Name
	raw.SupplierTaxID = supplier.TaxID
	raw.Authority = authority.Name
	if supplier.Name == "" {
		raw.NoSupplier = true
		s.logger.Debug("No supplier detected",
			zap.Int("index", s.index),
			zap.String("external_id", raw.ExternalID))
	}

	for _, a := range rec.Amendments {
		raw.Amendments = append(raw.Amendments, models.RawAmendment{
			Amount: a.Amount,
			Date:   a.Date,
		})
	}
	return raw
}

func (s *Stream) amendmentRecord(am *xmlAmendment) models.RawRecord {
	return models.RawRecord{
		Index:            s.index,
		Kind:             models.RecordKindAmendment,
		ParentExternalID: clean(am.ContractID),
		Amount:           am.Amount,
		Date:             am.Date,
	}
}

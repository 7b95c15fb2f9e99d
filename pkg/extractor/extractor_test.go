package extractor

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ylohnitram/danovyhlidac-sub001/pkg/apperrors"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/models"
)

// drain reads every record from the stream.
func drain(t *testing.T, s *Stream) []models.RawRecord {
	t.Helper()
	var records []models.RawRecord
	for {
		rec, err := s.Next()
		if err == io.EOF {
			return records
		}
		require.NoError(t, err)
		records = append(records, rec)
	}
}

func writeDump(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dump_2024_01.xml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func streamFromString(t *testing.T, content string, policy ShapePolicy) *Stream {
	t.Helper()
	s, err := NewStream(io.NopCloser(strings.NewReader(content)), policy, zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestExtract_AllShapes(t *testing.T) {
	e := New(DefaultShapePolicy(), zap.NewNop())

	s, err := e.Extract("testdata/dump_shapes.xml")
	require.NoError(t, err)
	defer s.Close()

	records := drain(t, s)
	require.Len(t, records, 6)

	tagged := records[0]
	assert.Equal(t, 1, tagged.Index)
	assert.Equal(t, models.RecordKindContract, tagged.Kind)
	assert.Equal(t, "1001", tagged.ExternalID)
	assert.Equal(t, string(ShapeTaggedSubjects), tagged.Shape)
	assert.Equal(t, "STRABAG a.s.", tagged.SupplierName)
	assert.Equal(t, "60838744", tagged.SupplierTaxID)
	assert.Equal(t, "Město Kolín", tagged.Authority)
	assert.Equal(t, "1250000.50", tagged.Amount)
	assert.Equal(t, "2024-01-10", tagged.Date)
	assert.Equal(t, "stavby", tagged.Category)
	assert.Equal(t, "otevřené", tagged.ProcurementType)
	assert.Equal(t, "50.0280", tagged.Latitude)
	assert.Equal(t, "15.2000", tagged.Longitude)
	assert.Equal(t, []models.RawAmendment{{Amount: "50000", Date: "2024-02-01"}}, tagged.Amendments)

	direct := records[1]
	assert.Equal(t, string(ShapeDirectSupplier), direct.Shape)
	assert.Equal(t, "Eurovia CS, a.s.", direct.SupplierName)
	assert.Equal(t, "Ředitelství silnic a dálnic ČR", direct.Authority)
	assert.Equal(t, "2 420 000,00", direct.Amount, "falls back to the amount with VAT")

	parties := records[2]
	assert.Equal(t, string(ShapeContractingParties), parties.Shape)
	assert.Equal(t, "COLAS CZ, a.s.", parties.SupplierName)
	assert.Equal(t, "Kraj Vysočina", parties.Authority, "authority falls back to the publishing subject")

	legacy := records[3]
	assert.Equal(t, string(ShapeLegacyFlat), legacy.Shape)
	assert.Equal(t, "Jan Novák", legacy.SupplierName)
	assert.Empty(t, legacy.ExternalID)

	none := records[4]
	assert.Empty(t, none.Shape)
	assert.True(t, none.NoSupplier)
	assert.Empty(t, none.SupplierName)
	assert.Equal(t, "Obec Horní Lhota", none.Authority)
	assert.NoError(t, none.ParseErr, "a record without supplier is still emitted")

	amendment := records[5]
	assert.Equal(t, 6, amendment.Index)
	assert.Equal(t, models.RecordKindAmendment, amendment.Kind)
	assert.Equal(t, "1002", amendment.ParentExternalID)
	assert.Equal(t, "100000", amendment.Amount)
	assert.Equal(t, "2024-01-30", amendment.Date)
}

const bothShapes = `<dump>
  <zaznam>
    <smlouva>
      <subjekty><subjekt role="dodavatel"><nazev>Tagged s.r.o.</nazev></subjekt></subjekty>
      <dodavatel><nazev>Direct s.r.o.</nazev></dodavatel>
      <predmet>Test</predmet>
    </smlouva>
  </zaznam>
</dump>`

func TestShapePolicy_PriorityOrder(t *testing.T) {
	records := drain(t, streamFromString(t, bothShapes, DefaultShapePolicy()))
	require.Len(t, records, 1)
	assert.Equal(t, string(ShapeTaggedSubjects), records[0].Shape)
	assert.Equal(t, "Tagged s.r.o.", records[0].SupplierName)

	policy, err := ParseShapePolicy([]string{"direct-supplier", "tagged-subjects"})
	require.NoError(t, err)

	records = drain(t, streamFromString(t, bothShapes, policy))
	require.Len(t, records, 1)
	assert.Equal(t, string(ShapeDirectSupplier), records[0].Shape)
	assert.Equal(t, "Direct s.r.o.", records[0].SupplierName)
}

func TestShapePolicy_ShapeOutsidePolicyIsIgnored(t *testing.T) {
	policy, err := ParseShapePolicy([]string{"legacy-flat"})
	require.NoError(t, err)

	records := drain(t, streamFromString(t, bothShapes, policy))
	require.Len(t, records, 1)
	assert.True(t, records[0].NoSupplier)
	assert.Empty(t, records[0].Shape)
}

func TestTaggedSubjects_WithoutSupplierRoleFallsThrough(t *testing.T) {
	const dump = `<dump><zaznam><smlouva>
      <subjekty><subjekt role="zadavatel"><nazev>Úřad</nazev></subjekt></subjekty>
      <dodavatel><nazev>Direct s.r.o.</nazev></dodavatel>
    </smlouva></zaznam></dump>`

	records := drain(t, streamFromString(t, dump, nil))
	require.Len(t, records, 1)
	assert.Equal(t, string(ShapeDirectSupplier), records[0].Shape)
}

func TestContractingParties_WithoutRecipientFlag(t *testing.T) {
	const dump = `<dump><zaznam><smlouva>
      <subjekt><nazev>Kraj</nazev><ico>111</ico></subjekt>
      <smluvniStrana><nazev>Kraj</nazev><ico>111</ico></smluvniStrana>
      <smluvniStrana><nazev>Firma</nazev><ico>222</ico></smluvniStrana>
    </smlouva></zaznam></dump>`

	records := drain(t, streamFromString(t, dump, nil))
	require.Len(t, records, 1)
	assert.Equal(t, "Firma", records[0].SupplierName)
	assert.Equal(t, "222", records[0].SupplierTaxID)
}

func TestParseShapePolicy_Errors(t *testing.T) {
	_, err := ParseShapePolicy(nil)
	assert.Error(t, err)

	_, err = ParseShapePolicy([]string{"tagged-subjects", "unknown"})
	assert.Error(t, err)

	_, err = ParseShapePolicy([]string{"legacy-flat", " Legacy-Flat "})
	assert.Error(t, err)
}

func TestNext_RecordWithoutBody(t *testing.T) {
	const dump = `<dump><zaznam><identifikator><idSmlouvy>9</idSmlouvy></identifikator></zaznam></dump>`

	records := drain(t, streamFromString(t, dump, nil))
	require.Len(t, records, 1)
	assert.Equal(t, "9", records[0].ExternalID)
	require.Error(t, records[0].ParseErr)
	assert.True(t, apperrors.Is(records[0].ParseErr, apperrors.KindParse))
}

func TestNext_SyntaxErrorEndsStream(t *testing.T) {
	const dump = `<dump>
  <zaznam><smlouva><predmet>OK</predmet></smlouva></zaznam>
  <zaznam><smlouva><predmet>Broken</smlouva></zaznam>
  <zaznam><smlouva><predmet>Never read</predmet></smlouva></zaznam>
</dump>`

	s := streamFromString(t, dump, nil)
	records := drain(t, s)
	require.Len(t, records, 2)
	assert.NoError(t, records[0].ParseErr)
	assert.Equal(t, 2, records[1].Index)
	assert.True(t, apperrors.Is(records[1].ParseErr, apperrors.KindParse))

	_, err := s.Next()
	assert.Equal(t, io.EOF, err, "stream is not restartable")
}

func TestNext_SkipsUnknownTopLevelElements(t *testing.T) {
	const dump = `<dump><hlavicka><verze>3</verze><zaznam/></hlavicka>
  <zaznam><smlouva><predmet>Only</predmet></smlouva></zaznam></dump>`

	records := drain(t, streamFromString(t, dump, nil))
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].Index)
	assert.Equal(t, "Only", records[0].Title)
}

func TestExtract_Windows1250(t *testing.T) {
	// "Most č. 5" with č encoded as 0xE8 in windows-1250.
	content := "<?xml version=\"1.0\" encoding=\"windows-1250\"?>\n" +
		"<dump><zaznam><smlouva><predmet>Most \xe8. 5</predmet></smlouva></zaznam></dump>"
	path := writeDump(t, content)

	s, err := New(nil, zap.NewNop()).Extract(path)
	require.NoError(t, err)
	defer s.Close()

	records := drain(t, s)
	require.Len(t, records, 1)
	assert.Equal(t, "Most č. 5", records[0].Title)
}

func TestExtract_NotXML(t *testing.T) {
	path := writeDump(t, "")

	_, err := New(nil, zap.NewNop()).Extract(path)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindParse))
}

func TestExtract_MissingFile(t *testing.T) {
	_, err := New(nil, zap.NewNop()).Extract(filepath.Join(t.TempDir(), "missing.xml"))
	assert.Error(t, err)
}

func TestExtract_RereadStartsFromBeginning(t *testing.T) {
	e := New(nil, zap.NewNop())

	first, err := e.Extract("testdata/dump_shapes.xml")
	require.NoError(t, err)
	rec, err := first.Next()
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Index)
	first.Close()

	second, err := e.Extract("testdata/dump_shapes.xml")
	require.NoError(t, err)
	defer second.Close()
	rec, err = second.Next()
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Index)
	assert.Equal(t, "1001", rec.ExternalID)
}

package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/username/taxcore/src/database"
	"github.com/username/taxcore/src/models"
	"github.com/username/taxcore/src/parsers"
	"github.com/username/taxcore/src/parsers/pattern"
	"github.com/username/taxcore/src/repository"
	"github.com/username/taxcore/src/taxconfig"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// started by an init in a package the genai client imports
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

const w2Text = `Form W-2 Wage and Tax Statement 2024
b Employer identification number (EIN) 12-3456789
c Employer's name, address, and ZIP code
ACME CORP
e Employee's first name and initial Last name
JANE Q DOE
1 Wages, tips, other compensation   60,000.00
2 Federal income tax withheld       8,000.00
3 Social security wages             60,000.00
4 Social security tax withheld      3,720.00
5 Medicare wages and tips           60,000.00
6 Medicare tax withheld             870.00
15 State IL
16 State wages, tips, etc. 60,000.00
17 State income tax 2,970.00`

type failingProvider struct{}

func (failingProvider) Name() string                 { return "broken" }
func (failingProvider) Method() models.ParsingMethod { return models.MethodLLM }
func (failingProvider) TryExtract(context.Context, models.DocumentType, string) (models.ExtractionResult, error) {
	return models.ExtractionResult{}, errors.New("upstream unavailable")
}

type testEnv struct {
	store    *repository.SQLiteStore
	config   *taxconfig.Store
	docs     DocumentService
	returns  ReturnService
	notifier *MockNotifier
}

// newTestEnv wires the services over a fresh database with the shipped
// 2024 tables imported. Caches run without a janitor goroutine.
func newTestEnv(t *testing.T, providers ...parsers.Provider) *testEnv {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "services.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db))

	store := repository.NewSQLiteStore(db)
	cfg := taxconfig.NewStore(store, nil)
	f, err := os.Open("../../data/tax_config_2024.yaml")
	require.NoError(t, err)
	defer f.Close()
	_, err = cfg.Import(context.Background(), f)
	require.NoError(t, err)

	if len(providers) == 0 {
		providers = []parsers.Provider{pattern.NewProvider()}
	}
	reportCache := cache.New(time.Minute, 0)
	notifier := &MockNotifier{}
	extractor := parsers.NewExtractor(0.8, 5*time.Second, providers...)
	return &testEnv{
		store:    store,
		config:   cfg,
		docs:     NewDocumentService(store, extractor, NewTextProducer(1<<20), notifier, reportCache, 3),
		returns:  NewReturnService(store, cfg, reportCache, 0.8),
		notifier: notifier,
	}
}

func (e *testEnv) newReturn(t *testing.T, state string) *models.TaxReturn {
	t.Helper()
	r, err := e.returns.CreateReturn(context.Background(), CreateReturnInput{
		UserID:       "user-1",
		FilingStatus: models.FilingSingle,
		Profile: models.TaxpayerProfile{
			FirstName:    "Jane",
			LastName:     "Doe",
			ContactEmail: "jane@example.com",
			Address:      models.Address{Line1: "1 Main St", City: "Springfield", State: state, Zip: "62701"},
		},
	})
	require.NoError(t, err)
	return r
}

func upload(returnID, name, text string) UploadInput {
	return UploadInput{
		TaxReturnID: returnID,
		FileName:    name,
		ContentType: "text/plain; charset=utf-8",
		Content:     strings.NewReader(text),
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

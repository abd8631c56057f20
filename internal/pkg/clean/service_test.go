package clean

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/airenas/vidsearch/internal/pkg/persistence"
	"github.com/airenas/vidsearch/internal/pkg/test"
	"github.com/airenas/vidsearch/internal/pkg/test/mocks"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

var (
	dbMock *mocks.DB
	tData  *Data
	tEcho  *echo.Echo
)

func initTest(t *testing.T) {
	dbMock = &mocks.DB{}
	dbMock.On("LoadWorkflow", mock.Anything, "1").Return(&persistence.Workflow{ID: "1", Phase: "COMPLETED"}, nil)
	tData = &Data{DB: dbMock}
	tData.Cleaner = newCleanMock(false)
	tEcho = initRoutes(tData)
}

func TestWrongPath(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodGet, "/invalid", nil)
	test.Code(t, tEcho, req, http.StatusNotFound)
}

func TestWrongMethod(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodPost, "/delete/1", nil)
	test.Code(t, tEcho, req, 405)
}

func Test_Clean(t *testing.T) {
	for _, ph := range []string{"COMPLETED", "EXPIRED", "FAILED"} {
		t.Run(ph, func(t *testing.T) {
			initTest(t)
			dbMock.ExpectedCalls = nil
			dbMock.On("LoadWorkflow", mock.Anything, "1").Return(&persistence.Workflow{ID: "1", Phase: ph}, nil)
			req := httptest.NewRequest(http.MethodDelete, "/delete/1", nil)
			test.Code(t, tEcho, req, http.StatusOK)
		})
	}
}

func Test_Clean_Active(t *testing.T) {
	for _, ph := range []string{"POLLING", "COMPLETING"} {
		t.Run(ph, func(t *testing.T) {
			initTest(t)
			dbMock.ExpectedCalls = nil
			dbMock.On("LoadWorkflow", mock.Anything, "1").Return(&persistence.Workflow{ID: "1", Phase: ph}, nil)
			req := httptest.NewRequest(http.MethodDelete, "/delete/1", nil)
			test.Code(t, tEcho, req, http.StatusConflict)
			assert.Equal(t, 0, len(tData.Cleaner.(*mockCleaner).Calls))
		})
	}
}

func Test_Clean_NotFound(t *testing.T) {
	initTest(t)
	dbMock.ExpectedCalls = nil
	dbMock.On("LoadWorkflow", mock.Anything, "1").Return(nil, nil)
	req := httptest.NewRequest(http.MethodDelete, "/delete/1", nil)
	test.Code(t, tEcho, req, http.StatusNotFound)
}

func Test_Clean_DBFails(t *testing.T) {
	initTest(t)
	dbMock.ExpectedCalls = nil
	dbMock.On("LoadWorkflow", mock.Anything, "1").Return(nil, errors.New("olia"))
	req := httptest.NewRequest(http.MethodDelete, "/delete/1", nil)
	test.Code(t, tEcho, req, http.StatusInternalServerError)
}

func Test_Clean_Fails(t *testing.T) {
	initTest(t)
	tData.Cleaner = newCleanMock(true)
	tEcho = initRoutes(tData)
	req := httptest.NewRequest(http.MethodDelete, "/delete/1", nil)
	test.Code(t, tEcho, req, http.StatusInternalServerError)
}

func Test_Live(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	test.Code(t, tEcho, req, 200)
}

func Test_validate(t *testing.T) {
	initTest(t)
	tests := []struct {
		name    string
		data    *Data
		wantErr bool
	}{
		{name: "OK", data: &Data{Cleaner: newCleanMock(false), DB: dbMock}, wantErr: false},
		{name: "Fail Cleaner", data: &Data{DB: dbMock}, wantErr: true},
		{name: "Fail DB", data: &Data{Cleaner: newCleanMock(false)}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := validate(tt.data); (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

type mockCleaner struct{ mock.Mock }

func (m *mockCleaner) Clean(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func newCleanMock(fail bool) *mockCleaner {
	res := &mockCleaner{}
	var err error
	if fail {
		err = errors.New("olia")
	}
	res.On("Clean", mock.Anything, mock.Anything).Return(err)
	return res
}

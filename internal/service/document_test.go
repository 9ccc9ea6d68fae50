package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"meddocs/internal/model"
	repoMocks "meddocs/internal/repository/mocks"
	"meddocs/internal/storage"
	storeMocks "meddocs/internal/storage/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

const testMaxBytes = 64

func TestDocumentService_Upload(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name         string
		originalName string
		declaredSize int64
		setupMocks   func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) io.Reader
		wantErr      error
		wantErrMsg   string
	}{
		{
			name:         "happy path",
			originalName: "lab-report.pdf",
			declaredSize: 13,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) io.Reader {
				mStore.On("Put", ctx, mock.MatchedBy(func(key string) bool {
					return strings.HasSuffix(key, ".pdf") && key != "lab-report.pdf"
				}), mock.Anything, mock.MatchedBy(func(opt storage.PutObjectOptions) bool {
					return opt.ContentType == "application/pdf" &&
						opt.Metadata["original-filename"] == "lab-report.pdf"
				})).Return(func(ctx context.Context, key string, r io.Reader, opt storage.PutObjectOptions) storage.ObjectInfo {
					n, _ := io.Copy(io.Discard, r)
					return storage.ObjectInfo{Key: key, Size: n}
				}, nil)

				mRepo.On("Create", ctx, mock.MatchedBy(func(doc *model.Document) bool {
					return doc.Filename != "" &&
						doc.OriginalName == "lab-report.pdf" &&
						doc.Filesize == 13 &&
						!doc.CreatedAt.IsZero()
				})).Return(&model.Document{ID: 1, OriginalName: "lab-report.pdf", Filesize: 13}, nil)

				return strings.NewReader("%PDF-1.4 body")
			},
		},
		{
			name:         "nil reader",
			originalName: "x.pdf",
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) io.Reader {
				return nil
			},
			wantErr: ErrReaderNil,
		},
		{
			name:         "wrong extension",
			originalName: "notes.txt",
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) io.Reader {
				return strings.NewReader("%PDF-1.4 body")
			},
			wantErr: ErrInvalidExtension,
		},
		{
			name:         "extension check is case-insensitive",
			originalName: "SCAN.PDF",
			declaredSize: 13,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) io.Reader {
				mStore.On("Put", ctx, mock.Anything, mock.Anything, mock.Anything).
					Return(func(ctx context.Context, key string, r io.Reader, opt storage.PutObjectOptions) storage.ObjectInfo {
						n, _ := io.Copy(io.Discard, r)
						return storage.ObjectInfo{Key: key, Size: n}
					}, nil)
				mRepo.On("Create", ctx, mock.Anything).
					Return(&model.Document{ID: 2, OriginalName: "SCAN.PDF"}, nil)
				return strings.NewReader("%PDF-1.7 body")
			},
		},
		{
			name:         "renamed non-PDF rejected by signature",
			originalName: "really-a-png.pdf",
			declaredSize: 13,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) io.Reader {
				return strings.NewReader("\x89PNG fake data")
			},
			wantErr: ErrInvalidSignature,
		},
		{
			name:         "content shorter than the signature",
			originalName: "tiny.pdf",
			declaredSize: 3,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) io.Reader {
				return strings.NewReader("%PD")
			},
			wantErr: ErrInvalidSignature,
		},
		{
			name:         "empty content",
			originalName: "empty.pdf",
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) io.Reader {
				return strings.NewReader("")
			},
			wantErr: ErrEmptyFile,
		},
		{
			name:         "declared size over the cap",
			originalName: "big.pdf",
			declaredSize: testMaxBytes + 1,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) io.Reader {
				return strings.NewReader("%PDF-1.4 body")
			},
			wantErr: ErrFileTooLarge,
		},
		{
			name:         "signature failure outranks size failure",
			originalName: "big-and-bogus.pdf",
			declaredSize: testMaxBytes + 1,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) io.Reader {
				return strings.NewReader("GIF89a oversized and mistyped")
			},
			wantErr: ErrInvalidSignature,
		},
		{
			name:         "storage write error",
			originalName: "doc.pdf",
			declaredSize: 13,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) io.Reader {
				mStore.On("Put", ctx, mock.Anything, mock.Anything, mock.Anything).
					Return(storage.ObjectInfo{}, errors.New("disk full"))
				return strings.NewReader("%PDF-1.4 body")
			},
			wantErrMsg: "upload to storage: disk full",
		},
		{
			name:         "understated declared size caught after the write",
			originalName: "liar.pdf",
			declaredSize: 10,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) io.Reader {
				mStore.On("Put", ctx, mock.Anything, mock.Anything, mock.Anything).
					Return(func(ctx context.Context, key string, r io.Reader, opt storage.PutObjectOptions) storage.ObjectInfo {
						n, _ := io.Copy(io.Discard, r)
						return storage.ObjectInfo{Key: key, Size: n}
					}, nil)
				mStore.On("Delete", ctx, mock.Anything).Return(nil)
				return strings.NewReader("%PDF-" + strings.Repeat("x", testMaxBytes))
			},
			wantErr: ErrFileTooLarge,
		},
		{
			name:         "insert failure rolls the blob back",
			originalName: "doc.pdf",
			declaredSize: 13,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) io.Reader {
				mStore.On("Put", ctx, mock.Anything, mock.Anything, mock.Anything).
					Return(func(ctx context.Context, key string, r io.Reader, opt storage.PutObjectOptions) storage.ObjectInfo {
						io.Copy(io.Discard, r)
						return storage.ObjectInfo{Key: key, Size: 13}
					}, nil)
				mRepo.On("Create", ctx, mock.Anything).Return(nil, errors.New("db fail"))
				mStore.On("Delete", ctx, mock.Anything).Return(nil)
				return strings.NewReader("%PDF-1.4 body")
			},
			wantErrMsg: "db save failed: db fail",
		},
		{
			name:         "insert failure with failed rollback reports both",
			originalName: "doc.pdf",
			declaredSize: 13,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) io.Reader {
				mStore.On("Put", ctx, mock.Anything, mock.Anything, mock.Anything).
					Return(func(ctx context.Context, key string, r io.Reader, opt storage.PutObjectOptions) storage.ObjectInfo {
						io.Copy(io.Discard, r)
						return storage.ObjectInfo{Key: key, Size: 13}
					}, nil)
				mRepo.On("Create", ctx, mock.Anything).Return(nil, errors.New("db fail"))
				mStore.On("Delete", ctx, mock.Anything).Return(errors.New("delete fail"))
				return strings.NewReader("%PDF-1.4 body")
			},
			wantErrMsg: "rollback delete failed: delete fail",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mStore := new(storeMocks.MockStorage)
			mRepo := new(repoMocks.MockDocumentRepository)
			svc := NewDocumentService(mStore, mRepo, testMaxBytes)

			r := tt.setupMocks(mStore, mRepo)

			doc, err := svc.Upload(ctx, r, tt.originalName, tt.declaredSize)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, doc)
			} else if tt.wantErrMsg != "" {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErrMsg)
				assert.Nil(t, doc)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, doc)
			}

			mStore.AssertExpectations(t)
			mRepo.AssertExpectations(t)
		})
	}
}

func TestIsValidationError(t *testing.T) {
	for _, err := range []error{ErrInvalidExtension, ErrInvalidSignature, ErrEmptyFile, ErrFileTooLarge} {
		assert.True(t, IsValidationError(err), "%v", err)
	}
	assert.False(t, IsValidationError(ErrNotFound))
	assert.False(t, IsValidationError(errors.New("disk on fire")))
}

func TestDocumentService_Get(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		id         int64
		setupMocks func(mRepo *repoMocks.MockDocumentRepository)
		wantErr    error
	}{
		{
			name: "happy path",
			id:   7,
			setupMocks: func(mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("FindByID", ctx, int64(7)).Return(&model.Document{ID: 7}, nil)
			},
		},
		{
			name: "not found maps sql.ErrNoRows",
			id:   99,
			setupMocks: func(mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("FindByID", ctx, int64(99)).Return(nil, sql.ErrNoRows)
			},
			wantErr: ErrNotFound,
		},
		{
			name: "generic repository error",
			id:   7,
			setupMocks: func(mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("FindByID", ctx, int64(7)).Return(nil, errors.New("db fail"))
			},
			wantErr: errors.New("db fail"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mRepo := new(repoMocks.MockDocumentRepository)
			svc := NewDocumentService(nil, mRepo, testMaxBytes)

			tt.setupMocks(mRepo)

			doc, err := svc.Get(ctx, tt.id)

			if tt.wantErr != nil {
				if errors.Is(tt.wantErr, ErrNotFound) {
					assert.ErrorIs(t, err, ErrNotFound)
				} else {
					assert.Error(t, err)
				}
				assert.Nil(t, doc)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.id, doc.ID)
			}
			mRepo.AssertExpectations(t)
		})
	}
}

func TestDocumentService_Download(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mRepo := new(repoMocks.MockDocumentRepository)
		svc := NewDocumentService(mStore, mRepo, testMaxBytes)

		mRepo.On("FindByID", ctx, int64(1)).
			Return(&model.Document{ID: 1, Filepath: "blob.pdf", OriginalName: "scan.pdf"}, nil)
		mStore.On("Get", ctx, "blob.pdf").
			Return(io.NopCloser(strings.NewReader("%PDF-data")), storage.ObjectInfo{Key: "blob.pdf", Size: 9}, nil)

		rc, doc, err := svc.Download(ctx, 1)
		assert.NoError(t, err)
		assert.Equal(t, "scan.pdf", doc.OriginalName)

		got, _ := io.ReadAll(rc)
		rc.Close()
		assert.Equal(t, "%PDF-data", string(got))

		mStore.AssertExpectations(t)
		mRepo.AssertExpectations(t)
	})

	t.Run("unknown id", func(t *testing.T) {
		mRepo := new(repoMocks.MockDocumentRepository)
		svc := NewDocumentService(nil, mRepo, testMaxBytes)

		mRepo.On("FindByID", ctx, int64(404)).Return(nil, sql.ErrNoRows)

		rc, doc, err := svc.Download(ctx, 404)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Nil(t, rc)
		assert.Nil(t, doc)
	})

	t.Run("dangling record yields not found", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mRepo := new(repoMocks.MockDocumentRepository)
		svc := NewDocumentService(mStore, mRepo, testMaxBytes)

		mRepo.On("FindByID", ctx, int64(2)).
			Return(&model.Document{ID: 2, Filepath: "vanished.pdf"}, nil)
		mStore.On("Get", ctx, "vanished.pdf").
			Return(nil, storage.ObjectInfo{}, storage.ErrNotExist)

		rc, _, err := svc.Download(ctx, 2)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Nil(t, rc)
	})

	t.Run("blob store I/O error", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mRepo := new(repoMocks.MockDocumentRepository)
		svc := NewDocumentService(mStore, mRepo, testMaxBytes)

		mRepo.On("FindByID", ctx, int64(3)).
			Return(&model.Document{ID: 3, Filepath: "blob.pdf"}, nil)
		mStore.On("Get", ctx, "blob.pdf").
			Return(nil, storage.ObjectInfo{}, errors.New("io fail"))

		_, _, err := svc.Download(ctx, 3)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotFound)
		assert.Contains(t, err.Error(), "open blob")
	})
}

func TestDocumentService_DownloadURL(t *testing.T) {
	ctx := context.Background()

	t.Run("presign supported", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mRepo := new(repoMocks.MockDocumentRepository)
		svc := NewDocumentService(mStore, mRepo, testMaxBytes)

		mRepo.On("FindByID", ctx, int64(1)).
			Return(&model.Document{ID: 1, Filepath: "blob.pdf"}, nil)
		mStore.On("PresignGet", ctx, "blob.pdf", 15*time.Minute).
			Return("https://example.test/blob.pdf?sig=abc", nil)

		u, err := svc.DownloadURL(ctx, 1, 15*time.Minute)
		assert.NoError(t, err)
		assert.Contains(t, u, "blob.pdf")
	})

	t.Run("presign not supported passes through", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mRepo := new(repoMocks.MockDocumentRepository)
		svc := NewDocumentService(mStore, mRepo, testMaxBytes)

		mRepo.On("FindByID", ctx, int64(1)).
			Return(&model.Document{ID: 1, Filepath: "blob.pdf"}, nil)
		mStore.On("PresignGet", ctx, "blob.pdf", time.Hour).
			Return("", storage.ErrPresignNotSupported)

		_, err := svc.DownloadURL(ctx, 1, time.Hour)
		assert.ErrorIs(t, err, storage.ErrPresignNotSupported)
	})
}

func TestDocumentService_Delete(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		id         int64
		setupMocks func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository)
		wantErr    error
	}{
		{
			name: "happy path",
			id:   1,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("FindByID", ctx, int64(1)).
					Return(&model.Document{ID: 1, Filepath: "blob.pdf"}, nil)
				mStore.On("Delete", ctx, "blob.pdf").Return(nil)
				mRepo.On("Delete", ctx, int64(1)).Return(nil)
			},
		},
		{
			name: "unknown id has no side effects",
			id:   99,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("FindByID", ctx, int64(99)).Return(nil, sql.ErrNoRows)
			},
			wantErr: ErrNotFound,
		},
		{
			name: "missing blob still deletes the row",
			id:   2,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("FindByID", ctx, int64(2)).
					Return(&model.Document{ID: 2, Filepath: "gone.pdf"}, nil)
				mStore.On("Delete", ctx, "gone.pdf").Return(storage.ErrNotExist)
				mRepo.On("Delete", ctx, int64(2)).Return(nil)
			},
		},
		{
			name: "blob store failure still deletes the row",
			id:   3,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("FindByID", ctx, int64(3)).
					Return(&model.Document{ID: 3, Filepath: "stuck.pdf"}, nil)
				mStore.On("Delete", ctx, "stuck.pdf").Return(errors.New("io fail"))
				mRepo.On("Delete", ctx, int64(3)).Return(nil)
			},
		},
		{
			name: "row delete failure surfaces",
			id:   4,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("FindByID", ctx, int64(4)).
					Return(&model.Document{ID: 4, Filepath: "blob.pdf"}, nil)
				mStore.On("Delete", ctx, "blob.pdf").Return(nil)
				mRepo.On("Delete", ctx, int64(4)).Return(errors.New("db fail"))
			},
			wantErr: errors.New("db delete failed: db fail"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mStore := new(storeMocks.MockStorage)
			mRepo := new(repoMocks.MockDocumentRepository)
			svc := NewDocumentService(mStore, mRepo, testMaxBytes)

			tt.setupMocks(mStore, mRepo)

			err := svc.Delete(ctx, tt.id)

			if tt.wantErr != nil {
				if errors.Is(tt.wantErr, ErrNotFound) {
					assert.ErrorIs(t, err, ErrNotFound)
				} else {
					assert.Error(t, err)
					assert.Contains(t, err.Error(), tt.wantErr.Error())
				}
			} else {
				assert.NoError(t, err)
			}
			mStore.AssertExpectations(t)
			mRepo.AssertExpectations(t)
		})
	}
}

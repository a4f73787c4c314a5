package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/Azure/azure-storage-blob-go/azblob"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// ExternalTier archives sealed compression buckets to an object-storage
// backend, giving ContentStorage.storage_type=external a real
// home: one struct dispatched by URI scheme (s3://, gs://, azblob://)
// rather than a provider interface, since this engine has no
// bucket-provider abstraction of its own to hang off of.
type ExternalTier struct {
	s3Uploader   *s3manager.Uploader
	s3Downloader *s3manager.Downloader
	gcsClient    *storage.Client
	azureCreds   azblob.Credential
	azureAccount string
}

func NewExternalTier(gcsClient *storage.Client, azureAccountName, azureAccountKey string) (*ExternalTier, error) {
	sess := session.Must(session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
	}))
	et := &ExternalTier{
		s3Uploader:   s3manager.NewUploader(sess),
		s3Downloader: s3manager.NewDownloader(sess),
		gcsClient:    gcsClient,
	}
	if azureAccountName != "" {
		creds, err := azblob.NewSharedKeyCredential(azureAccountName, azureAccountKey)
		if err != nil {
			return nil, errors.Wrap(err, "store: azure credentials")
		}
		et.azureCreds = creds
		et.azureAccount = azureAccountName
	}
	return et, nil
}

// Archive uploads the sealed bucket's bytes to uri (a caller-chosen
// archive location, e.g. "s3://crawler-archive/<bucket-name>.bin"). It
// returns only the upload error and writes no db rows.
func (e *ExternalTier) Archive(ctx context.Context, uri string, data []byte) error {
	u, err := url.Parse(uri)
	if err != nil {
		return errors.Wrap(err, "store: parse external uri")
	}
	switch u.Scheme {
	case "s3":
		return e.archiveS3(ctx, u, data)
	case "gs":
		return e.archiveGCS(ctx, u, data)
	case "azblob":
		return e.archiveAzure(ctx, u, data)
	default:
		return errors.Errorf("store: unsupported external scheme %q", u.Scheme)
	}
}

func (e *ExternalTier) Get(uri string) ([]byte, error) {
	ctx := context.Background()
	u, err := url.Parse(uri)
	if err != nil {
		return nil, errors.Wrap(err, "store: parse external uri")
	}
	switch u.Scheme {
	case "s3":
		return e.getS3(ctx, u)
	case "gs":
		return e.getGCS(ctx, u)
	case "azblob":
		return e.getAzure(ctx, u)
	default:
		return nil, errors.Errorf("store: unsupported external scheme %q", u.Scheme)
	}
}

func (e *ExternalTier) archiveS3(ctx context.Context, u *url.URL, data []byte) error {
	bucket, key := u.Host, strings.TrimPrefix(u.Path, "/")
	_, err := e.s3Uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return errors.Wrap(err, "store: s3 upload")
	}
	glog.V(3).Infof("store: archived %d bytes to s3://%s/%s", len(data), bucket, key)
	return nil
}

func (e *ExternalTier) getS3(ctx context.Context, u *url.URL) ([]byte, error) {
	bucket, key := u.Host, strings.TrimPrefix(u.Path, "/")
	buf := aws.NewWriteAtBuffer(nil)
	_, err := e.s3Downloader.DownloadWithContext(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.Wrap(err, "store: s3 download")
	}
	return buf.Bytes(), nil
}

func (e *ExternalTier) archiveGCS(ctx context.Context, u *url.URL, data []byte) error {
	if e.gcsClient == nil {
		return errors.New("store: gcs client not configured")
	}
	bucket, object := u.Host, strings.TrimPrefix(u.Path, "/")
	w := e.gcsClient.Bucket(bucket).Object(object).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return errors.Wrap(err, "store: gcs write")
	}
	return errors.Wrap(w.Close(), "store: gcs close")
}

func (e *ExternalTier) getGCS(ctx context.Context, u *url.URL) ([]byte, error) {
	if e.gcsClient == nil {
		return nil, errors.New("store: gcs client not configured")
	}
	bucket, object := u.Host, strings.TrimPrefix(u.Path, "/")
	r, err := e.gcsClient.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "store: gcs reader")
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (e *ExternalTier) archiveAzure(ctx context.Context, u *url.URL, data []byte) error {
	if e.azureCreds == nil {
		return errors.New("store: azure credentials not configured")
	}
	container, blobName := u.Host, strings.TrimPrefix(u.Path, "/")
	blobURL, err := e.azureBlockBlobURL(container, blobName)
	if err != nil {
		return err
	}
	_, err = azblob.UploadBufferToBlockBlob(ctx, data, blobURL, azblob.UploadToBlockBlobOptions{})
	return errors.Wrap(err, "store: azure upload")
}

func (e *ExternalTier) getAzure(ctx context.Context, u *url.URL) ([]byte, error) {
	if e.azureCreds == nil {
		return nil, errors.New("store: azure credentials not configured")
	}
	container, blobName := u.Host, strings.TrimPrefix(u.Path, "/")
	blobURL, err := e.azureBlockBlobURL(container, blobName)
	if err != nil {
		return nil, err
	}
	resp, err := blobURL.Download(ctx, 0, azblob.CountToEnd, azblob.BlobAccessConditions{}, false, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "store: azure download")
	}
	body := resp.Body(azblob.RetryReaderOptions{})
	defer body.Close()
	return io.ReadAll(body)
}

func (e *ExternalTier) azureBlockBlobURL(container, blobName string) (azblob.BlockBlobURL, error) {
	pipeline := azblob.NewPipeline(e.azureCreds, azblob.PipelineOptions{})
	u, err := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net/%s", e.azureAccount, container))
	if err != nil {
		return azblob.BlockBlobURL{}, err
	}
	containerURL := azblob.NewContainerURL(*u, pipeline)
	return containerURL.NewBlockBlobURL(blobName), nil
}

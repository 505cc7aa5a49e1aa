package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/campaigner/internal/domain"
)

// Dynamo is the production gateway backed by a single DynamoDB table and an
// S3 bucket for raw upload archives.
type Dynamo struct {
	dynamoDB  *dynamodb.Client
	s3Client  *s3.Client
	tableName string
	bucket    string
}

// item is the single-table record shape. Data holds the JSON-encoded domain
// object; Version is the optimistic concurrency token and lives outside the
// payload so conditional writes can reference it.
type item struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	Data      string `dynamodbav:"Data"`
	Version   int64  `dynamodbav:"Version"`
	UpdatedAt string `dynamodbav:"UpdatedAt"`
}

// NewDynamo creates a DynamoDB-backed gateway. The bucket may be empty, in
// which case upload archiving is disabled.
func NewDynamo(ctx context.Context, tableName, bucket, region, profile string) (*Dynamo, error) {
	var cfg aws.Config
	var err error

	if profile != "" {
		cfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(region),
			awsconfig.WithSharedConfigProfile(profile),
		)
	} else {
		cfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &Dynamo{
		dynamoDB:  dynamodb.NewFromConfig(cfg),
		s3Client:  s3.NewFromConfig(cfg),
		tableName: tableName,
		bucket:    bucket,
	}, nil
}

// getItem reads one record with a consistent read so a CAS cycle always
// observes its own prior write.
func (d *Dynamo) getItem(ctx context.Context, pk, sk string) (*item, error) {
	result, err := d.dynamoDB.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.tableName),
		ConsistentRead: aws.Bool(true),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: sk},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("getting item from DynamoDB: %w", err)
	}
	if result.Item == nil {
		return nil, ErrNotFound
	}
	var it item
	if err := attributevalue.UnmarshalMap(result.Item, &it); err != nil {
		return nil, fmt.Errorf("unmarshaling item: %w", err)
	}
	return &it, nil
}

// putItem writes one record conditioned on the version the caller read. A
// zero version requires the record not to exist. Returns the new version.
func (d *Dynamo) putItem(ctx context.Context, pk, sk string, v any, version int64) (int64, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("marshaling record: %w", err)
	}

	next := version + 1
	it := item{
		PK:        pk,
		SK:        sk,
		Data:      string(data),
		Version:   next,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	av, err := attributevalue.MarshalMap(it)
	if err != nil {
		return 0, fmt.Errorf("marshaling item: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      av,
	}
	if version == 0 {
		input.ConditionExpression = aws.String("attribute_not_exists(PK)")
	} else {
		input.ConditionExpression = aws.String("Version = :v")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", version)},
		}
	}

	if _, err := d.dynamoDB.PutItem(ctx, input); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return 0, ErrVersionConflict
		}
		return 0, fmt.Errorf("putting item to DynamoDB: %w", err)
	}
	return next, nil
}

// putItemUnchecked writes one record without a version condition. Used for
// records with last-writer-wins semantics such as templates.
func (d *Dynamo) putItemUnchecked(ctx context.Context, pk, sk string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}
	it := item{
		PK:        pk,
		SK:        sk,
		Data:      string(data),
		Version:   1,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	av, err := attributevalue.MarshalMap(it)
	if err != nil {
		return fmt.Errorf("marshaling item: %w", err)
	}
	if _, err := d.dynamoDB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      av,
	}); err != nil {
		return fmt.Errorf("putting item to DynamoDB: %w", err)
	}
	return nil
}

func (d *Dynamo) deleteItem(ctx context.Context, pk, sk string) error {
	_, err := d.dynamoDB.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: sk},
		},
	})
	if err != nil {
		return fmt.Errorf("deleting item from DynamoDB: %w", err)
	}
	return nil
}

// queryItems returns all records under one partition key.
func (d *Dynamo) queryItems(ctx context.Context, pk string) ([]item, error) {
	var items []item
	paginator := dynamodb.NewQueryPaginator(d.dynamoDB, &dynamodb.QueryInput{
		TableName:              aws.String(d.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: pk},
		},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("querying DynamoDB: %w", err)
		}
		for _, raw := range page.Items {
			var it item
			if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
				continue
			}
			items = append(items, it)
		}
	}
	return items, nil
}

// GetCampaign returns the campaign with the given id.
func (d *Dynamo) GetCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	it, err := d.getItem(ctx, pkCampaign, id)
	if err != nil {
		return nil, err
	}
	var c domain.Campaign
	if err := json.Unmarshal([]byte(it.Data), &c); err != nil {
		return nil, fmt.Errorf("unmarshaling campaign %s: %w", id, err)
	}
	c.Version = it.Version
	return &c, nil
}

// ListCampaigns returns all campaigns ordered by creation time, newest first.
func (d *Dynamo) ListCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	items, err := d.queryItems(ctx, pkCampaign)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Campaign, 0, len(items))
	for _, it := range items {
		var c domain.Campaign
		if err := json.Unmarshal([]byte(it.Data), &c); err != nil {
			continue
		}
		c.Version = it.Version
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// PutCampaign writes a campaign conditioned on its version token. On
// success the campaign's version is advanced to the stored value.
func (d *Dynamo) PutCampaign(ctx context.Context, c *domain.Campaign) error {
	next, err := d.putItem(ctx, pkCampaign, c.ID, c, c.Version)
	if err != nil {
		return err
	}
	c.Version = next
	return nil
}

// UpdateCampaignStats replaces only the stats block of a campaign using a
// version-conditioned write. The rest of the record is taken from a fresh
// read so concurrent edits to other fields are preserved.
func (d *Dynamo) UpdateCampaignStats(ctx context.Context, id string, stats domain.CampaignStats, expectedVersion int64) error {
	it, err := d.getItem(ctx, pkCampaign, id)
	if err != nil {
		return err
	}
	if it.Version != expectedVersion {
		return ErrVersionConflict
	}
	var c domain.Campaign
	if err := json.Unmarshal([]byte(it.Data), &c); err != nil {
		return fmt.Errorf("unmarshaling campaign %s: %w", id, err)
	}
	c.Stats = stats
	_, err = d.putItem(ctx, pkCampaign, id, &c, expectedVersion)
	return err
}

// DeleteCampaign removes a campaign. Deleting an absent record is not an
// error.
func (d *Dynamo) DeleteCampaign(ctx context.Context, id string) error {
	return d.deleteItem(ctx, pkCampaign, id)
}

// emailGuard reserves a normalized address under the CONTACT_EMAIL
// partition so contact creation can detect duplicates without a scan.
type emailGuard struct {
	ContactID string `json:"contact_id"`
}

// CreateContact stores a new contact. The normalized email is claimed with
// a conditional write first; losing that race returns ErrDuplicateEmail.
func (d *Dynamo) CreateContact(ctx context.Context, c *domain.Contact) error {
	key := NormalizeEmail(c.Email)
	if _, err := d.putItem(ctx, pkContactEmail, key, emailGuard{ContactID: c.ID}, 0); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return ErrDuplicateEmail
		}
		return err
	}
	return d.putItemUnchecked(ctx, pkContact, c.ID, c)
}

// GetContact returns the contact with the given id.
func (d *Dynamo) GetContact(ctx context.Context, id string) (*domain.Contact, error) {
	it, err := d.getItem(ctx, pkContact, id)
	if err != nil {
		return nil, err
	}
	var c domain.Contact
	if err := json.Unmarshal([]byte(it.Data), &c); err != nil {
		return nil, fmt.Errorf("unmarshaling contact %s: %w", id, err)
	}
	return &c, nil
}

// GetContactByEmail looks a contact up through its email guard record.
func (d *Dynamo) GetContactByEmail(ctx context.Context, email string) (*domain.Contact, error) {
	it, err := d.getItem(ctx, pkContactEmail, NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	var guard emailGuard
	if err := json.Unmarshal([]byte(it.Data), &guard); err != nil {
		return nil, fmt.Errorf("unmarshaling email guard: %w", err)
	}
	return d.GetContact(ctx, guard.ContactID)
}

// ListContacts returns all contacts ordered by subscribe date, newest first.
func (d *Dynamo) ListContacts(ctx context.Context) ([]domain.Contact, error) {
	items, err := d.queryItems(ctx, pkContact)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Contact, 0, len(items))
	for _, it := range items {
		var c domain.Contact
		if err := json.Unmarshal([]byte(it.Data), &c); err != nil {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubscribeDate.After(out[j].SubscribeDate) })
	return out, nil
}

// UpdateContact overwrites an existing contact. Changing the email claims
// the new guard before releasing the old one, so a failed claim leaves the
// original address intact.
func (d *Dynamo) UpdateContact(ctx context.Context, c *domain.Contact) error {
	existing, err := d.GetContact(ctx, c.ID)
	if err != nil {
		return err
	}
	oldKey := NormalizeEmail(existing.Email)
	newKey := NormalizeEmail(c.Email)
	if oldKey != newKey {
		if _, err := d.putItem(ctx, pkContactEmail, newKey, emailGuard{ContactID: c.ID}, 0); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				return ErrDuplicateEmail
			}
			return err
		}
		if err := d.deleteItem(ctx, pkContactEmail, oldKey); err != nil {
			return err
		}
	}
	return d.putItemUnchecked(ctx, pkContact, c.ID, c)
}

// DeleteContact removes a contact and releases its email guard.
func (d *Dynamo) DeleteContact(ctx context.Context, id string) error {
	c, err := d.GetContact(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if err := d.deleteItem(ctx, pkContactEmail, NormalizeEmail(c.Email)); err != nil {
		return err
	}
	return d.deleteItem(ctx, pkContact, id)
}

// GetTemplate returns the template with the given id.
func (d *Dynamo) GetTemplate(ctx context.Context, id string) (*domain.Template, error) {
	it, err := d.getItem(ctx, pkTemplate, id)
	if err != nil {
		return nil, err
	}
	var t domain.Template
	if err := json.Unmarshal([]byte(it.Data), &t); err != nil {
		return nil, fmt.Errorf("unmarshaling template %s: %w", id, err)
	}
	return &t, nil
}

// ListTemplates returns all templates ordered by name.
func (d *Dynamo) ListTemplates(ctx context.Context) ([]domain.Template, error) {
	items, err := d.queryItems(ctx, pkTemplate)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Template, 0, len(items))
	for _, it := range items {
		var t domain.Template
		if err := json.Unmarshal([]byte(it.Data), &t); err != nil {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// PutTemplate creates or replaces a template.
func (d *Dynamo) PutTemplate(ctx context.Context, t *domain.Template) error {
	return d.putItemUnchecked(ctx, pkTemplate, t.ID, t)
}

// DeleteTemplate removes a template.
func (d *Dynamo) DeleteTemplate(ctx context.Context, id string) error {
	return d.deleteItem(ctx, pkTemplate, id)
}

// GetJob returns the upload job with the given id.
func (d *Dynamo) GetJob(ctx context.Context, id string) (*domain.UploadJob, error) {
	it, err := d.getItem(ctx, pkJob, id)
	if err != nil {
		return nil, err
	}
	var j domain.UploadJob
	if err := json.Unmarshal([]byte(it.Data), &j); err != nil {
		return nil, fmt.Errorf("unmarshaling job %s: %w", id, err)
	}
	j.Version = it.Version
	return &j, nil
}

// PutJob writes an upload job with the same version semantics as
// PutCampaign.
func (d *Dynamo) PutJob(ctx context.Context, j *domain.UploadJob) error {
	next, err := d.putItem(ctx, pkJob, j.ID, j, j.Version)
	if err != nil {
		return err
	}
	j.Version = next
	return nil
}

// ArchiveUpload stores the raw upload payload in S3. A gateway configured
// without a bucket skips archiving.
func (d *Dynamo) ArchiveUpload(ctx context.Context, key string, payload []byte) error {
	if d.bucket == "" {
		return nil
	}
	_, err := d.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return fmt.Errorf("putting upload archive to S3: %w", err)
	}
	return nil
}

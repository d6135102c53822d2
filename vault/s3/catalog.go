package s3

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ErrConcurrentArchive is returned when two archivers race to commit the
// same database and the other writer won.
var ErrConcurrentArchive = errors.New("s3: concurrent archive commit")

// DDBClient is the subset of the DynamoDB client used by Catalog.
// *dynamodb.Client satisfies it.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Commit is one catalog row: an archive bundle committed for a database.
type Commit struct {
	Database  string
	Version   uint64
	Bundle    string
	Guard     string
	CRC32C    uint32
	CreatedAt time.Time
}

// Catalog records committed archives in a DynamoDB table, giving the
// bundle store the compare-and-swap semantics S3 lacks. Each commit takes
// the next version number with a conditional write, so two processes
// archiving the same database cannot both believe they won.
//
// Table schema:
//   - Partition key: database (string)
//   - Sort key: version (number), monotonically increasing
//
// Create the table with:
//
//	aws dynamodb create-table \
//	  --table-name archive-commits \
//	  --attribute-definitions AttributeName=database,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=database,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type Catalog struct {
	client DDBClient
	table  string
}

// NewCatalog creates a catalog over the given table.
func NewCatalog(client DDBClient, table string) *Catalog {
	return &Catalog{
		client: client,
		table:  table,
	}
}

// Commit records a new archive for database under the next version number
// and returns that version. When another writer commits the same version
// first, the conditional write fails and Commit returns ErrConcurrentArchive.
func (c *Catalog) Commit(ctx context.Context, database, bundle, guard string, crc uint32) (uint64, error) {
	latest, ok, err := c.Latest(ctx, database)
	if err != nil {
		return 0, err
	}

	version := uint64(1)
	if ok {
		version = latest.Version + 1
	}

	// Conditional put: only succeed if this version does not exist yet.
	_, err = c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.table),
		Item: map[string]types.AttributeValue{
			"database":   &types.AttributeValueMemberS{Value: database},
			"version":    &types.AttributeValueMemberN{Value: strconv.FormatUint(version, 10)},
			"bundle":     &types.AttributeValueMemberS{Value: bundle},
			"guard":      &types.AttributeValueMemberS{Value: guard},
			"crc32c":     &types.AttributeValueMemberN{Value: strconv.FormatUint(uint64(crc), 10)},
			"created_at": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return 0, fmt.Errorf("s3: commit archive of %q: %w", database, ErrConcurrentArchive)
		}
		return 0, fmt.Errorf("s3: commit archive of %q: %w", database, err)
	}

	return version, nil
}

// Latest returns the newest committed archive for database.
// ok is false when the catalog holds no commits for it.
func (c *Catalog) Latest(ctx context.Context, database string) (latest Commit, ok bool, err error) {
	// "database" is a DynamoDB reserved word, hence the #db alias.
	resp, err := c.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.table),
		KeyConditionExpression: aws.String("#db = :db"),
		ExpressionAttributeNames: map[string]string{
			"#db": "database",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":db": &types.AttributeValueMemberS{Value: database},
		},
		ScanIndexForward: aws.Bool(false), // descending, newest first
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return Commit{}, false, fmt.Errorf("s3: query archive catalog for %q: %w", database, err)
	}

	if len(resp.Items) == 0 {
		return Commit{}, false, nil
	}

	latest, err = commitFromItem(resp.Items[0])
	if err != nil {
		return Commit{}, false, err
	}
	return latest, true, nil
}

func commitFromItem(item map[string]types.AttributeValue) (Commit, error) {
	var c Commit

	db, ok := item["database"].(*types.AttributeValueMemberS)
	if !ok {
		return Commit{}, errors.New("s3: catalog row has no database attribute")
	}
	c.Database = db.Value

	versionAttr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return Commit{}, errors.New("s3: catalog row has no version attribute")
	}
	version, err := strconv.ParseUint(versionAttr.Value, 10, 64)
	if err != nil {
		return Commit{}, fmt.Errorf("s3: parse catalog version: %w", err)
	}
	c.Version = version

	if bundle, ok := item["bundle"].(*types.AttributeValueMemberS); ok {
		c.Bundle = bundle.Value
	}
	if guard, ok := item["guard"].(*types.AttributeValueMemberS); ok {
		c.Guard = guard.Value
	}
	if crcAttr, ok := item["crc32c"].(*types.AttributeValueMemberN); ok {
		crc, err := strconv.ParseUint(crcAttr.Value, 10, 32)
		if err != nil {
			return Commit{}, fmt.Errorf("s3: parse catalog crc32c: %w", err)
		}
		c.CRC32C = uint32(crc)
	}
	if created, ok := item["created_at"].(*types.AttributeValueMemberS); ok {
		t, err := time.Parse(time.RFC3339Nano, created.Value)
		if err != nil {
			return Commit{}, fmt.Errorf("s3: parse catalog created_at: %w", err)
		}
		c.CreatedAt = t
	}

	return c, nil
}

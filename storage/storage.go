package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Tables names the row collections backing the app.
type Tables struct {
	Users         string
	Teams         string
	TeamMembers   string
	Boards        string
	BoardColumns  string
	Tasks         string
	ChatMessages  string
	Notifications string
}

// Storage provides access to the underlying persistence mechanisms.
type Storage struct {
	users         *aztables.Client
	teams         *aztables.Client
	teamMembers   *aztables.Client
	boards        *aztables.Client
	boardColumns  *aztables.Client
	tasks         *aztables.Client
	chatMessages  *aztables.Client
	notifications *aztables.Client
	notifyQueue   *azqueue.QueueClient
}

// New creates a Storage instance from the given connection string.
func New(connStr string, tables Tables, notifyQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	nq, err := azqueue.NewQueueClientFromConnectionString(connStr, notifyQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{
		users:         svc.NewClient(tables.Users),
		teams:         svc.NewClient(tables.Teams),
		teamMembers:   svc.NewClient(tables.TeamMembers),
		boards:        svc.NewClient(tables.Boards),
		boardColumns:  svc.NewClient(tables.BoardColumns),
		tasks:         svc.NewClient(tables.Tasks),
		chatMessages:  svc.NewClient(tables.ChatMessages),
		notifications: svc.NewClient(tables.Notifications),
		notifyQueue:   nq,
	}, nil
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 404
}

func mapNotFound(err error) error {
	if isNotFound(err) {
		return ErrNotFound
	}
	return err
}

func partitionFilter(pk string) string {
	return "PartitionKey eq '" + escapeFilter(pk) + "'"
}

func rowFilter(rk string) string {
	return "RowKey eq '" + escapeFilter(rk) + "'"
}

func escapeFilter(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}

func listEntities(ctx context.Context, client *aztables.Client, filter string, decode func([]byte) error) error {
	pager := client.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, e := range resp.Entities {
			if err := decode(e); err != nil {
				return err
			}
		}
	}
	return nil
}

// getSingle runs a filtered scan and decodes the first matching entity.
func getSingle(ctx context.Context, client *aztables.Client, filter string, out any) error {
	found := false
	err := listEntities(ctx, client, filter, func(data []byte) error {
		if found {
			return nil
		}
		found = true
		return json.Unmarshal(data, out)
	})
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

func upsert(ctx context.Context, client *aztables.Client, ent any) error {
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = client.UpsertEntity(ctx, payload, nil)
	return err
}

func merge(ctx context.Context, client *aztables.Client, ent any) error {
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = client.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{
		IfMatch:    &et,
		UpdateMode: aztables.UpdateModeMerge,
	})
	return mapNotFound(err)
}

func deleteEntity(ctx context.Context, client *aztables.Client, pk, rk string) error {
	_, err := client.DeleteEntity(ctx, pk, rk, nil)
	if isNotFound(err) {
		// Deletes are idempotent at this layer.
		return nil
	}
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func encodePayload(data map[string]any) string {
	if len(data) == 0 {
		return ""
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	return string(raw)
}

func decodePayload(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil
	}
	return data
}

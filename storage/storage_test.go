package storage

import (
	"strings"
	"testing"
	"time"

	"tarefasplus/domain"
)

func TestDecodeTaskEntity(t *testing.T) {
	data := []byte(`{"PartitionKey":"tarefas","RowKey":"01HZ","Tarefa":"Buy milk","Created@odata.type":"Edm.DateTime","Created":"2024-05-01T12:00:00.1234567Z","User":"a@x.com","Public":true}`)
	task, err := decodeTaskEntity(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if task.ID != "01HZ" || task.Tarefa != "Buy milk" || task.User != "a@x.com" || !task.Public {
		t.Fatalf("unexpected task: %+v", task)
	}
	want := time.Date(2024, 5, 1, 12, 0, 0, 123456700, time.UTC)
	if !task.Created.Equal(want) {
		t.Fatalf("created = %v, want %v", task.Created, want)
	}
}

func TestEncodeTaskEntityTypesCreated(t *testing.T) {
	task := domain.Task{ID: "01HZ", Tarefa: "Walk dog", Created: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), User: "a@x.com"}
	data, err := encodeTaskEntity(task)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	s := string(data)
	for _, want := range []string{
		`"PartitionKey":"tarefas"`,
		`"RowKey":"01HZ"`,
		`"Created@odata.type":"Edm.DateTime"`,
		`"Public":false`,
	} {
		if !strings.Contains(s, want) {
			t.Fatalf("expected %s in %s", want, s)
		}
	}

	back, err := decodeTaskEntity(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back.ID != task.ID || back.Tarefa != task.Tarefa || back.User != task.User || !back.Created.Equal(task.Created) {
		t.Fatalf("round trip = %+v, want %+v", back, task)
	}
}

func TestOwnerFilterEscapesQuotes(t *testing.T) {
	got := ownerFilter("o'brien@x.com")
	want := "PartitionKey eq 'tarefas' and User eq 'o''brien@x.com'"
	if got != want {
		t.Fatalf("ownerFilter = %q, want %q", got, want)
	}
}

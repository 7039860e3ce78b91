package tryon

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"virtual-fitting-room/internal/catalog"
	"virtual-fitting-room/internal/imagecodec"
)

var (
	photoA = imagecodec.Wrap("image/jpeg", "QQ==")
	photoB = imagecodec.Wrap("image/jpeg", "Qg==")
	result = imagecodec.Wrap("image/png", "Ug==")
)

func testProduct() catalog.Product {
	p, err := catalog.Default().Get("1")
	if err != nil {
		panic(err)
	}
	return p
}

func readyState() State {
	s, _ := Reduce(State{Status: StatusIdle}, ProductSelected{Product: testProduct()})
	s, _ = Reduce(s, PhotoAccepted{Photo: photoA})
	return s
}

func TestReduce_HappyPath(t *testing.T) {
	s := State{Status: StatusIdle}

	s, ok := Reduce(s, ProductSelected{Product: testProduct()})
	assert.True(t, ok)
	assert.Equal(t, StatusIdle, s.Status)
	assert.Equal(t, "1", s.Product.ID)

	s, ok = Reduce(s, PhotoAccepted{Photo: photoA})
	assert.True(t, ok)
	assert.Equal(t, StatusAwaitingPhoto, s.Status)

	s, ok = Reduce(s, GenerationStarted{})
	assert.True(t, ok)
	assert.Equal(t, StatusGenerating, s.Status)

	s, ok = Reduce(s, GenerationSucceeded{Result: result})
	assert.True(t, ok)
	assert.Equal(t, StatusSucceeded, s.Status)
	assert.Equal(t, result, s.Result)
	assert.Empty(t, s.Error)

	s, ok = Reduce(s, ResultReset{})
	assert.True(t, ok)
	assert.Equal(t, StatusAwaitingPhoto, s.Status)
	assert.Empty(t, s.Result)
	assert.Equal(t, photoA, s.UserPhoto)
}

func TestReduce_GenerateWithoutPhotoIsRejected(t *testing.T) {
	s, _ := Reduce(State{Status: StatusIdle}, ProductSelected{Product: testProduct()})

	next, ok := Reduce(s, GenerationStarted{})
	assert.False(t, ok)
	assert.Equal(t, s, next)
}

func TestReduce_GenerateWithoutProductIsRejected(t *testing.T) {
	s, _ := Reduce(State{Status: StatusIdle}, PhotoAccepted{Photo: photoA})
	assert.Equal(t, StatusAwaitingPhoto, s.Status)

	_, ok := Reduce(s, GenerationStarted{})
	assert.False(t, ok)
}

func TestReduce_Failure(t *testing.T) {
	s, _ := Reduce(readyState(), GenerationStarted{})
	s, ok := Reduce(s, GenerationFailed{})
	assert.True(t, ok)
	assert.Equal(t, StatusFailed, s.Status)
	assert.Equal(t, FailureMessage, s.Error)
	assert.Empty(t, s.Result)

	// Retrying clears the error.
	s, ok = Reduce(s, GenerationStarted{})
	assert.True(t, ok)
	assert.Equal(t, StatusGenerating, s.Status)
	assert.Empty(t, s.Error)
}

func TestReduce_NewPhotoClearsOutcome(t *testing.T) {
	for _, outcome := range []Event{GenerationSucceeded{Result: result}, GenerationFailed{Message: "x"}} {
		s, _ := Reduce(readyState(), GenerationStarted{})
		s, _ = Reduce(s, outcome)

		s, ok := Reduce(s, PhotoAccepted{Photo: photoB})
		assert.True(t, ok)
		assert.Equal(t, StatusAwaitingPhoto, s.Status)
		assert.Equal(t, photoB, s.UserPhoto)
		assert.Empty(t, s.Result)
		assert.Empty(t, s.Error)
	}
}

func TestReduce_GeneratingBlocksEdits(t *testing.T) {
	s, _ := Reduce(readyState(), GenerationStarted{})

	for _, ev := range []Event{
		PhotoAccepted{Photo: photoB},
		PhotoRemoved{},
		PhotoRejected{Message: "x"},
		ProductSelected{Product: testProduct()},
		GenerationStarted{},
		ResultReset{},
	} {
		next, ok := Reduce(s, ev)
		assert.False(t, ok, "%T", ev)
		assert.Equal(t, s, next)
	}
}

func TestReduce_RejectedUploadKeepsPhoto(t *testing.T) {
	s := readyState()
	next, ok := Reduce(s, PhotoRejected{Message: TooLargeMessage})
	assert.True(t, ok)
	assert.Equal(t, StatusAwaitingPhoto, next.Status)
	assert.Equal(t, photoA, next.UserPhoto)
	assert.Equal(t, TooLargeMessage, next.UploadError)
	assert.Empty(t, next.Error)
}

func TestReduce_RemovePhoto(t *testing.T) {
	s, ok := Reduce(readyState(), PhotoRemoved{})
	assert.True(t, ok)
	assert.Equal(t, StatusIdle, s.Status)
	assert.False(t, s.HasPhoto())
}

func TestReduce_OutcomeOutsideGeneratingIgnored(t *testing.T) {
	s := readyState()
	_, ok := Reduce(s, GenerationSucceeded{Result: result})
	assert.False(t, ok)
	_, ok = Reduce(s, GenerationFailed{})
	assert.False(t, ok)
	_, ok = Reduce(s, ResultReset{})
	assert.False(t, ok)
	_, ok = Reduce(s, nil)
	assert.False(t, ok)
}

func TestReduce_InvariantsHoldOverAllSequences(t *testing.T) {
	events := []Event{
		ProductSelected{Product: testProduct()},
		PhotoAccepted{Photo: photoA},
		PhotoRejected{Message: ReadMessage},
		PhotoRemoved{},
		GenerationStarted{},
		GenerationSucceeded{Result: result},
		GenerationFailed{},
		ResultReset{},
	}

	var walk func(s State, depth int)
	walk = func(s State, depth int) {
		if !s.Result.IsZero() {
			assert.Equal(t, StatusSucceeded, s.Status)
		}
		if s.Error != "" {
			assert.Equal(t, StatusFailed, s.Status)
		}
		if depth == 0 {
			return
		}
		for _, ev := range events {
			next, _ := Reduce(s, ev)
			walk(next, depth-1)
		}
	}
	walk(State{Status: StatusIdle}, 5)
}

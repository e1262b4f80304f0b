// Package indexer queries the GraphQL indexing service that follows the quiz contract events.
package indexer

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"funquiz-service/internal/domain"
	"github.com/machinebox/graphql"
)

const accountQuery = `
query getPlayerData($id: ID!) {
  accounts(where: { id: $id }) {
    id
    quizzesCreated {
      quizId
      title
      description
    }
    quizzesCompleted {
      quiz {
        quizId
      }
      score
    }
  }
}`

// Client reads account activity from the indexer.
type Client struct {
	gql *graphql.Client
}

// New creates a client for endpoint. httpClient may be nil.
func New(endpoint string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{gql: graphql.NewClient(endpoint, graphql.WithHTTPClient(httpClient))}
}

// BigInt fields arrive as JSON strings.
type accountsResponse struct {
	Accounts []struct {
		ID             string `json:"id"`
		QuizzesCreated []struct {
			QuizID      string `json:"quizId"`
			Title       string `json:"title"`
			Description string `json:"description"`
		} `json:"quizzesCreated"`
		QuizzesCompleted []struct {
			Quiz struct {
				QuizID string `json:"quizId"`
			} `json:"quiz"`
			Score string `json:"score"`
		} `json:"quizzesCompleted"`
	} `json:"accounts"`
}

// Account returns what address created and completed. An address the indexer has never seen has
// empty lists.
func (c *Client) Account(ctx context.Context, address string) ([]domain.CreatedQuiz, []domain.CompletedQuiz, error) {
	req := graphql.NewRequest(accountQuery)
	req.Var("id", domain.NormalizeAddress(address))

	var resp accountsResponse
	if err := c.gql.Run(ctx, req, &resp); err != nil {
		return nil, nil, fmt.Errorf("%w: indexer: %v", domain.ErrUpstream, err)
	}
	created := []domain.CreatedQuiz{}
	completed := []domain.CompletedQuiz{}
	if len(resp.Accounts) == 0 {
		return created, completed, nil
	}
	account := resp.Accounts[0]
	for _, q := range account.QuizzesCreated {
		id, err := strconv.ParseInt(q.QuizID, 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: indexer quiz id %q", domain.ErrUpstream, q.QuizID)
		}
		created = append(created, domain.CreatedQuiz{QuizID: id, Title: q.Title, Description: q.Description})
	}
	for _, q := range account.QuizzesCompleted {
		id, err := strconv.ParseInt(q.Quiz.QuizID, 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: indexer quiz id %q", domain.ErrUpstream, q.Quiz.QuizID)
		}
		score, err := strconv.ParseInt(q.Score, 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: indexer score %q", domain.ErrUpstream, q.Score)
		}
		completed = append(completed, domain.CompletedQuiz{QuizID: id, Score: score})
	}
	return created, completed, nil
}

// Package tally подсчитывает голоса доверенных лиц в текущем цикле голосования.
package tally

import "github.com/devxaves/lifeline-protocol/internal/models"

// Result - итог подсчета: последний голос каждого доверенного лица и счетчики по вариантам.
type Result struct {
	Latest      map[string]models.VoteChoice
	Dead        int
	Alive       int
	Unavailable int
	Unknown     int
}

// Count учитывает не более одного голоса на доверенное лицо.
// Голоса идут в порядке подачи, поэтому более поздний перезаписывает ранний.
func Count(votes []models.Vote) Result {
	latest := make(map[string]models.VoteChoice, len(votes))
	for _, v := range votes {
		latest[v.Trustee] = v.Choice
	}

	res := Result{Latest: latest}
	for _, choice := range latest {
		switch choice {
		case models.VoteDead:
			res.Dead++
		case models.VoteAlive:
			res.Alive++
		case models.VoteUnavailable:
			res.Unavailable++
		case models.VoteUnknown:
			res.Unknown++
		}
	}
	return res
}

// Reached сообщает, набрано ли строгое большинство голосов "dead".
// Ровно половина кворумом не считается.
func Reached(dead, total int) bool {
	if total <= 0 {
		return false
	}
	return dead*2 > total
}

// Evaluate считает голоса среди текущих доверенных лиц хранилища.
// Голоса кошельков, не входящих в список, не учитываются.
func Evaluate(v *models.Vault) (Result, bool) {
	counted := make([]models.Vote, 0, len(v.Votes))
	for _, vote := range v.Votes {
		if v.IsTrustee(vote.Trustee) {
			counted = append(counted, vote)
		}
	}
	res := Count(counted)
	return res, Reached(res.Dead, len(v.Trustees))
}

// View преобразует результат в представление для ответа API.
func (r Result) View(total int) models.TallyView {
	return models.TallyView{
		Dead:        r.Dead,
		Alive:       r.Alive,
		Unavailable: r.Unavailable,
		Unknown:     r.Unknown,
		Total:       total,
		QuorumMet:   Reached(r.Dead, total),
	}
}

package game

import (
	"encoding/json"
	"strings"
)

// wireState is the game_state payload. Field order matters to clients
// that diff raw frames, so keep board first.
type wireState struct {
	Board       Board  `json:"board"`
	CurrentTurn string `json:"current_turn"`
	Player1     string `json:"player1"`
	Player2     string `json:"player2"`
}

// WireJSON renders the full game state as a compact JSON document.
func (g *Game) WireJSON() (string, error) {
	raw, err := json.Marshal(wireState{
		Board:       g.Board,
		CurrentTurn: g.CurrentTurn,
		Player1:     g.Player1,
		Player2:     g.Player2,
	})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

var cellSymbols = map[Cell]byte{
	Empty:     '.',
	White:     'w',
	WhiteKing: 'W',
	Black:     'b',
	BlackKing: 'B',
}

// BoardString renders the board as an 8-line grid for debug logs.
func (g *Game) BoardString() string {
	var sb strings.Builder
	for row := 0; row < BoardSize; row++ {
		for col := 0; col < BoardSize; col++ {
			if col > 0 {
				sb.WriteByte(' ')
			}
			sym, ok := cellSymbols[g.Board[row][col]]
			if !ok {
				sym = '?'
			}
			sb.WriteByte(sym)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

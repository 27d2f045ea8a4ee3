package game

// Cell is a single board square. Values match the wire encoding used in
// the game_state JSON, so they must not be reordered.
type Cell int

const (
	Empty Cell = iota
	White
	WhiteKing
	Black
	BlackKing
)

// BoardSize is the side length of the playing field.
const BoardSize = 8

// Board is an 8x8 grid. Row 0 is the black back rank, row 7 the white one.
type Board [BoardSize][BoardSize]Cell

// Game holds one checkers match between two named players.
// Player1 plays white and moves toward row 0, Player2 plays black and
// moves toward row 7. Not safe for concurrent use; the owning room
// serializes access.
type Game struct {
	Board       Board
	Player1     string
	Player2     string
	CurrentTurn string
	Active      bool
}

// New sets up the initial position. White to move first, so the turn
// starts with player1.
func New(player1, player2 string) *Game {
	g := &Game{
		Player1:     player1,
		Player2:     player2,
		CurrentTurn: player1,
		Active:      true,
	}

	// Пешки стоят только на тёмных клетках: (row+col) чётное.
	for row := 0; row < 3; row++ {
		for col := 0; col < BoardSize; col++ {
			if (row+col)%2 == 0 {
				g.Board[row][col] = Black
			}
		}
	}
	for row := 5; row < BoardSize; row++ {
		for col := 0; col < BoardSize; col++ {
			if (row+col)%2 == 0 {
				g.Board[row][col] = White
			}
		}
	}

	return g
}

// color maps a player name to their base piece color. Anyone who is not
// player1 plays black.
func (g *Game) color(player string) Cell {
	if player == g.Player1 {
		return White
	}
	return Black
}

func isWhite(c Cell) bool { return c == White || c == WhiteKing }
func isBlack(c Cell) bool { return c == Black || c == BlackKing }
func isKing(c Cell) bool  { return c == WhiteKing || c == BlackKing }

// belongsTo reports whether the piece in c is owned by the given color.
func belongsTo(c, color Cell) bool {
	if color == White {
		return isWhite(c)
	}
	return isBlack(c)
}

// isEnemy reports whether c holds an opposing piece for the given color.
func isEnemy(c, color Cell) bool {
	if c == Empty {
		return false
	}
	return !belongsTo(c, color)
}

func inBounds(row, col int) bool {
	return row >= 0 && row < BoardSize && col >= 0 && col < BoardSize
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func sign(n int) int {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	}
	return 0
}

// ValidateMove checks a single step for the given player, including the
// turn. Multi-jump chains call this once per hop; the turn only changes
// after the whole chain is applied.
func (g *Game) ValidateMove(player string, fromRow, fromCol, toRow, toCol int) bool {
	if g.CurrentTurn != player {
		return false
	}
	return g.validateStep(player, fromRow, fromCol, toRow, toCol)
}

// validateStep applies the movement rules without looking at the turn.
func (g *Game) validateStep(player string, fromRow, fromCol, toRow, toCol int) bool {
	if !inBounds(fromRow, fromCol) || !inBounds(toRow, toCol) {
		return false
	}
	if g.Board[toRow][toCol] != Empty {
		return false
	}

	piece := g.Board[fromRow][fromCol]
	if piece == Empty {
		return false
	}

	color := g.color(player)
	if !belongsTo(piece, color) {
		return false
	}

	rowDiff := toRow - fromRow
	colDiff := toCol - fromCol
	if abs(rowDiff) != abs(colDiff) || rowDiff == 0 {
		return false
	}

	if isKing(piece) {
		// Дамка ходит по диагонали на любое расстояние и может
		// перепрыгнуть максимум одну чужую шашку.
		enemies := 0
		dr, dc := sign(rowDiff), sign(colDiff)
		for r, c := fromRow+dr, fromCol+dc; r != toRow; r, c = r+dr, c+dc {
			cell := g.Board[r][c]
			if cell == Empty {
				continue
			}
			if belongsTo(cell, color) {
				return false
			}
			enemies++
			if enemies > 1 {
				return false
			}
		}
		return true
	}

	switch abs(rowDiff) {
	case 1:
		// Plain step: white climbs toward row 0, black descends.
		if color == White {
			return rowDiff == -1
		}
		return rowDiff == 1
	case 2:
		// Jump over an enemy piece. Captures may go backwards.
		midRow := fromRow + rowDiff/2
		midCol := fromCol + colDiff/2
		return isEnemy(g.Board[midRow][midCol], color)
	}

	return false
}

// ApplyMove moves the piece and removes everything captured along the
// way. Callers must validate first; ApplyMove trusts its input.
func (g *Game) ApplyMove(fromRow, fromCol, toRow, toCol int) {
	piece := g.Board[fromRow][fromCol]
	g.Board[fromRow][fromCol] = Empty
	g.Board[toRow][toCol] = piece

	rowDiff := toRow - fromRow
	if abs(rowDiff) >= 2 {
		dr, dc := sign(rowDiff), sign(toCol-fromCol)
		for r, c := fromRow+dr, fromCol+dc; r != toRow; r, c = r+dr, c+dc {
			g.Board[r][c] = Empty
		}
	}

	// Promotion on the far rank. Kings stay kings.
	if piece == White && toRow == 0 {
		g.Board[toRow][toCol] = WhiteKing
	}
	if piece == Black && toRow == BoardSize-1 {
		g.Board[toRow][toCol] = BlackKing
	}
}

// ChangeTurn hands the move to the other player.
func (g *Game) ChangeTurn() {
	if g.CurrentTurn == g.Player1 {
		g.CurrentTurn = g.Player2
	} else {
		g.CurrentTurn = g.Player1
	}
}

// Winner reports the winning player once one side has no pieces left.
func (g *Game) Winner() (string, bool) {
	white, black := 0, 0
	for row := 0; row < BoardSize; row++ {
		for col := 0; col < BoardSize; col++ {
			switch {
			case isWhite(g.Board[row][col]):
				white++
			case isBlack(g.Board[row][col]):
				black++
			}
		}
	}

	if white == 0 {
		return g.Player2, true
	}
	if black == 0 {
		return g.Player1, true
	}
	return "", false
}

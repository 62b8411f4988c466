package sentiment

// Curated polarity lexicons. The regional lists carry Nigerian Pidgin and
// informal register that general-purpose wordlists miss; scoring quality
// depends far more on these lists than on the combination weights.

// Multi-word entries are matched as substrings of the lowercased text, so
// phrases like "e sweet" and "no cap" work without tokenization.
var regionalPositive = []string{
	"omo", "correct", "sha", "e sweet", "mad o", "fire", "goat", "legend",
	"king", "queen", "boss", "oga", "chairman", "dey reign", "no cap",
	"sabi", "better", "sweet", "valid", "odogwu", "baddest",
	"amen", "congrats", "proud", "love", "best", "greatest", "win", "winner",
}

var regionalNegative = []string{
	"werey", "mumu", "ode", "olodo", "yeye", "craze", "foolish", "fake",
	"clout", "cap", "lie", "liar", "shame", "fall", "fail",
	"rubbish", "nonsense", "trash", "hate", "worst", "bad", "terrible",
}

// Insult terms drive the toxicity estimate harder than ordinary negativity.
var insults = []string{
	"werey", "mumu", "ode", "olodo", "idiot", "stupid", "fool", "trash",
	"disgrace", "useless",
}

var positiveEmoji = map[rune]bool{
	'🔥': true, '💯': true, '😍': true, '🙌': true, '👏': true, '✨': true,
	'💪': true, '🏆': true, '👑': true, '🐐': true, '💕': true, '🎉': true,
	'😊': true, '👍': true, '❤': true, '🥰': true, '😂': true,
}

var negativeEmoji = map[rune]bool{
	'😡': true, '🤮': true, '👎': true, '💩': true, '🖕': true, '😤': true,
	'😠': true, '🤡': true, '💔': true,
}

// generalPolarity is the lightweight heuristic for residual English text:
// a small hand-held polarity map with negation flipping, nothing learned.
var generalPolarity = map[string]float64{
	"good": 1, "great": 1, "nice": 1, "beautiful": 1, "amazing": 1,
	"awesome": 1, "happy": 1, "blessed": 1, "excellent": 1, "perfect": 1,
	"fine": 0.5, "cool": 0.5, "fun": 0.5,
	"poor": -1, "awful": -1, "horrible": -1, "ugly": -1, "sad": -1,
	"angry": -1, "disappointing": -1, "boring": -0.5, "annoying": -1,
	"wrong": -0.5, "mess": -0.5,
}

var negations = map[string]bool{
	"not": true, "no": true, "never": true, "nor": true, "cannot": true,
	"cant": true, "dont": true, "doesnt": true, "isnt": true, "wasnt": true,
}

package consts

// Agent identifiers. These are the keys of a SignalMap.
const (
	// 分析师
	TechnicalAnalyst   = "technical_analyst"
	FundamentalAnalyst = "fundamental_analyst"
	SentimentAnalyst   = "sentiment_analyst"
	MarketAnalyst      = "market_analyst"

	// 投资人格
	WarrenBuffett        = "warren_buffett"
	CharlieMunger        = "charlie_munger"
	BenGraham            = "ben_graham"
	MichaelBurry         = "michael_burry"
	MohnishPabrai        = "mohnish_pabrai"
	PeterLynch           = "peter_lynch"
	CathieWood           = "cathie_wood"
	PhilFisher           = "phil_fisher"
	RakeshJhunjhunwala   = "rakesh_jhunjhunwala"
	AswathDamodaran      = "aswath_damodaran"
	StanleyDruckenmiller = "stanley_druckenmiller"
	BillAckman           = "bill_ackman"

	// 规则策略
	MomentumStrategy       = "momentum_strategy"
	MeanReversionStrategy  = "mean_reversion_strategy"
	SectorRotationStrategy = "sector_rotation_strategy"
	MultiFactorStrategy    = "multi_factor_strategy"

	// 风控
	RiskManager = "risk_manager"

	// 决策
	PortfolioManager = "portfolio_manager"
)

// Selection strategies.
const (
	StrategySector     = "sector"
	StrategyMarketWide = "market_wide"
)

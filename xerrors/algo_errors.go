package xerrors

var (
	// ErrInvalidConfig 训练参数错误（C、迭代次数、容差）。
	ErrInvalidConfig = New(ErrInvalidArg, 400001, "invalid config", "C, maxIterations, tolerance and epsilon must be positive", nil)
	// ErrInvalidKernel 核函数超参数错误。
	ErrInvalidKernel = New(ErrInvalidArg, 400002, "invalid kernel", "gamma must be positive, degree at least 1, constant finite", nil)
	// ErrInvalidLabel 标签不是 +1/-1，或无法编码为二分类。
	ErrInvalidLabel = New(ErrInvalidArg, 400003, "invalid label", "labels must take exactly the values +1 and -1", nil)
	// ErrDimMismatch 维度不匹配.
	ErrDimMismatch = New(ErrInvalidArg, 400004, "dimension mismatch", "vector or matrix dimensions do not match", nil)
	// ErrInvalidRatio 数据集划分比例错误。
	ErrInvalidRatio = New(ErrInvalidArg, 400005, "invalid ratio", "ratios must lie in [0, 1] and sum to at most 1", nil)
	// ErrEmptyData 输入数据为空。
	ErrEmptyData = New(ErrInvalidArg, 400006, "empty data", "input data must not be empty", nil)
	// ErrInvalidInput 输入格式错误。
	ErrInvalidInput = New(ErrInvalidArg, 400007, "invalid input", "check your input parameters", nil)
	// ErrDegenerateInput 训练样本少于 2 个，只能得到平凡模型。
	ErrDegenerateInput = New(ErrInvalidArg, 400008, "degenerate input", "fewer than two training examples, trivial zero model produced", nil)
	// ErrUnsupportedKernel 当前核函数不支持该操作。
	ErrUnsupportedKernel = New(ErrInvalidArg, 400009, "unsupported kernel", "operation is only defined for the linear kernel", nil)
	// ErrNotTrained 模型尚未训练。
	ErrNotTrained = New(ErrFailedPrecondition, 412001, "model not trained", "call Train before Predict", nil)
	// ErrAlreadyTrained 模型只能训练一次。
	ErrAlreadyTrained = New(ErrAlreadyExists, 409001, "model already trained", "construct a new classifier to retrain", nil)
	// ErrModelNotFound 模型产物不存在。
	ErrModelNotFound = New(ErrNotFound, 404001, "model not found", "no artifact stored under the given key", nil)
	// ErrRateLimited 请求被限流。
	ErrRateLimited = New(ErrLimitExceeded, 429001, "too many requests", "access rate limit exceeded", nil)
	// ErrBodyTooLarge 请求体超过 server.http.max_body_bytes。
	ErrBodyTooLarge = New(ErrTooLarge, 413001, "request body too large", "shrink the batch or raise max_body_bytes", nil)
)

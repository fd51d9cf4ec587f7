package gateway

// 托管合约与 ERC20 的最小 ABI，只覆盖本系统实际调用的入口。
const dexABI = `[
  {"type":"function","name":"createOrder","stateMutability":"nonpayable",
   "inputs":[{"name":"sellToken","type":"address"},{"name":"buyToken","type":"address"},
             {"name":"sellAmount","type":"uint256"},{"name":"buyAmount","type":"uint256"}],
   "outputs":[{"name":"id","type":"uint256"}]},
  {"type":"function","name":"cancelOrder","stateMutability":"nonpayable",
   "inputs":[{"name":"id","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"fillOrder","stateMutability":"nonpayable",
   "inputs":[{"name":"id","type":"uint256"},{"name":"sellAmountToTake","type":"uint256"}],
   "outputs":[]},
  {"type":"function","name":"fillManyBuyBase","stateMutability":"nonpayable",
   "inputs":[{"name":"base","type":"address"},{"name":"quote","type":"address"},
             {"name":"wantBase","type":"uint256"},{"name":"maxQuote","type":"uint256"},
             {"name":"makerIds","type":"uint256[]"},{"name":"takeBase","type":"uint256[]"}],
   "outputs":[]},
  {"type":"function","name":"getOrder","stateMutability":"view",
   "inputs":[{"name":"id","type":"uint256"}],
   "outputs":[{"components":[
      {"name":"owner","type":"address"},
      {"name":"sellToken","type":"address"},
      {"name":"buyToken","type":"address"},
      {"name":"sellAmount","type":"uint256"},
      {"name":"buyAmount","type":"uint256"},
      {"name":"remainingSell","type":"uint256"},
      {"name":"active","type":"bool"}],"type":"tuple"}]},
  {"type":"function","name":"getOrdersLength","stateMutability":"view",
   "inputs":[],"outputs":[{"type":"uint256"}]},
  {"type":"event","name":"OrderCreated","anonymous":false,
   "inputs":[{"name":"id","type":"uint256","indexed":true},
             {"name":"owner","type":"address","indexed":true}]},
  {"type":"event","name":"OrderFilled","anonymous":false,
   "inputs":[{"name":"id","type":"uint256","indexed":true},
             {"name":"maker","type":"address","indexed":true},
             {"name":"taker","type":"address","indexed":true},
             {"name":"sellTaken","type":"uint256","indexed":false},
             {"name":"buyPaid","type":"uint256","indexed":false}]}
]`

const erc20ABI = `[
  {"type":"function","name":"balanceOf","stateMutability":"view",
   "inputs":[{"name":"account","type":"address"}],"outputs":[{"type":"uint256"}]},
  {"type":"function","name":"allowance","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],
   "outputs":[{"type":"uint256"}]},
  {"type":"function","name":"approve","stateMutability":"nonpayable",
   "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
   "outputs":[{"type":"bool"}]}
]`
